//go:build integration

package web_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence/postgresql"
	"github.com/dukex/parley/pkg/services"
	"github.com/dukex/parley/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupIntegrationApp(t *testing.T) *testEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("parley_web"),
		postgres.WithUsername("parley"),
		postgres.WithPassword("parley"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() { _ = p.Close(context.Background()) })

	workflows := services.NewWorkflow(p, nil, logger)
	connections := services.NewConnections(p, nil, logger)

	handlers := web.NewAPIHandlers(
		workflows,
		connections,
		services.NewChannels(p, logger),
		services.NewRouting(p, logger),
		nil,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app)

	return &testEnv{app: app, persistence: p, workflows: workflows, connections: connections}
}

func TestRoutingConfiguration_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupIntegrationApp(t)

	resp, body := env.do(t, http.MethodPost, "/channels", web.CreateChannelRequest{BusinessID: "business-1", Name: "sales"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodPost, "/workflows/build", web.BuildWorkflowRequest{
		Name:       "Categories",
		BusinessID: "business-1",
		Active:     true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var workflow models.ConversationWorkflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	require.NotNil(t, workflow.StepByID("tag_channel_sales"))

	env.registerUnipile(t, "acc-1")

	resp, body = env.do(t, http.MethodPatch, "/connections/acc-1/config", map[string]any{"defaultFlowId": workflow.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodPatch, "/connections/acc-1", map[string]any{"mode": "human_only"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	base := decodeRecord(t, body).Base()
	assert.Equal(t, models.ModeHumanOnly, base.Mode)
	require.NotNil(t, base.DefaultFlowID)
	assert.Equal(t, workflow.ID, *base.DefaultFlowID)

	resp, body = env.do(t, http.MethodPost, "/connections/acc-1/decide", map[string]any{"stepId": "ask_category", "input": "sales"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var decision services.Decision
	require.NoError(t, json.Unmarshal(body, &decision))
	assert.Equal(t, "tag_channel_sales", decision.NextStepID)
	assert.Equal(t, services.SourceDefaultFlow, decision.Source)

	resp, _ = env.do(t, http.MethodDelete, "/workflows/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/connections/acc-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, decodeRecord(t, body).Base().DefaultFlowID)
}
