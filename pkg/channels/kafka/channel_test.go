package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092,"))
	assert.Empty(t, ParseBrokers(""))
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "cg-test")
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestNewPublisherAndSubscriber_NoBrokers(t *testing.T) {
	_, err := NewPublisher(watermill.NopLogger{}, []string{})
	assert.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewSubscriber(watermill.NopLogger{}, nil, "cg-test")
	assert.ErrorIs(t, err, ErrNoBrokers)
}
