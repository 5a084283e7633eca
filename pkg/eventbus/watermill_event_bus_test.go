package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/parley/pkg/channels/gochannel"
	"github.com/dukex/parley/pkg/eventbus"
	"github.com/dukex/parley/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	received := make(chan *events.WorkflowDeleted, 1)

	require.NoError(t, bus.Handle(events.WorkflowDeletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowDeleted)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "wf-1", events.WorkflowCreated{
		BaseEvent:  events.NewBaseEvent(events.WorkflowCreatedEvent, "business-1"),
		WorkflowID: "wf-1",
	}))
	require.NoError(t, bus.Publish(ctx, "wf-1", events.WorkflowDeleted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowDeletedEvent, "business-1"),
		WorkflowID: "wf-1",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "wf-1", event.WorkflowID)
		assert.Equal(t, "business-1", event.BusinessID)
	case <-time.After(5 * time.Second):
		t.Fatal("workflow.deleted was not delivered")
	}
}

func TestDecode(t *testing.T) {
	event, known, err := eventbus.Decode(events.ConnectionDeletedEvent, []byte(`{"connection_id":"c-1","business_id":"b-1"}`))
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, "c-1", event.(*events.ConnectionDeleted).ConnectionID)

	_, known, err = eventbus.Decode("unknown.event", nil)
	assert.NoError(t, err)
	assert.False(t, known)

	_, known, err = eventbus.Decode(events.WorkflowCreatedEvent, []byte(`{`))
	assert.True(t, known)
	assert.Error(t, err)
}

func TestGenerateID(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
