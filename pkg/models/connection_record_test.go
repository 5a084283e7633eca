package models_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRecord_JSONFlattensVariant(t *testing.T) {
	conn := testutil.CreateTestWhatsAppConnection(func(c *models.WhatsAppBusinessConnection) {
		c.ConnectionID = "waba-1"
		c.DefaultFlowID = testutil.StringPtr("flow-1")
	})

	record, err := models.NewConnectionRecord(conn)
	require.NoError(t, err)

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "whatsapp_business", raw["kind"])
	assert.Equal(t, "waba-1", raw["connectionId"])
	assert.Equal(t, "hybrid", raw["mode"])
	assert.Equal(t, "flow-1", raw["defaultFlowId"])
	assert.Equal(t, "1098765432", raw["phoneNumberId"])
}

func TestConnectionRecord_UnmarshalNormalizesStatus(t *testing.T) {
	data := []byte(`{
		"kind": "unipile",
		"connectionId": "u-1",
		"businessId": "b-1",
		"status": "Connected ",
		"mode": "ai_only",
		"fallbackBehavior": "route_to_ai",
		"defaultFlowId": null,
		"platform": "linkedin"
	}`)

	var record models.ConnectionRecord
	require.NoError(t, json.Unmarshal(data, &record))

	require.NotNil(t, record.Unipile)
	assert.Equal(t, models.ConnectionKindUnipile, record.Kind())
	assert.Equal(t, models.ConnectionStatusActive, record.Unipile.Status)
	assert.Equal(t, models.ModeAIOnly, record.Connection().RoutingConfig().Mode)
	assert.Nil(t, record.Base().DefaultFlowID)
	assert.Equal(t, "linkedin", record.Unipile.Platform)
}

func TestConnectionRecord_UnknownKind(t *testing.T) {
	var record models.ConnectionRecord

	err := json.Unmarshal([]byte(`{"kind":"telegram"}`), &record)
	assert.ErrorIs(t, err, models.ErrUnknownConnectionKind)

	_, err = json.Marshal(models.ConnectionRecord{})
	assert.Error(t, err)
}
