package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/persistence/postgresql"
	"github.com/dukex/parley/pkg/testutil"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"business_channels", "channel_connections", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("parley_test"),
			postgres.WithUsername("parley"),
			postgres.WithPassword("parley"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	for _, table := range []string{"workflows", "channel_connections", "business_channels", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	workflow := testutil.CreateTestWorkflow(testutil.WithAgent("agent-1"))

	require.NoError(t, repo.Save(ctx, workflow))
	assert.NotEmpty(t, workflow.ID)
	assert.False(t, workflow.CreatedAt.IsZero())

	retrieved, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, workflow.Name, retrieved.Name)
	assert.Equal(t, "agent-1", *retrieved.AgentID)
	assert.Equal(t, workflow.Trigger, retrieved.Trigger)
	assert.Equal(t, workflow.Steps, retrieved.Steps)
	assert.Equal(t, workflow.Translations, retrieved.Translations)
	assert.WithinDuration(t, workflow.CreatedAt, retrieved.CreatedAt, time.Millisecond)

	notFound, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, notFound)
}

func TestWorkflowRepository_ListAndDelete(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := testutil.CreateTestWorkflow(testutil.WithWorkflowID("first"), func(w *models.ConversationWorkflow) { w.CreatedAt = base })
	second := testutil.CreateTestWorkflow(testutil.WithWorkflowID("second"), testutil.WithAgent("agent-9"), func(w *models.ConversationWorkflow) { w.CreatedAt = base.Add(time.Minute) })
	inactive := testutil.CreateTestWorkflow(testutil.WithWorkflowID("inactive"), testutil.WithActive(false))

	for _, workflow := range []*models.ConversationWorkflow{second, inactive, first} {
		require.NoError(t, repo.Save(ctx, workflow))
	}

	active := true

	list, err := repo.List(ctx, persistence.ListWorkflowsOptions{BusinessID: "business-1", Active: &active})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].ID)
	assert.Equal(t, "second", list[1].ID)

	require.NoError(t, repo.Delete(ctx, "first"))

	deleted, err := repo.GetByID(ctx, "first")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	list, err = repo.List(ctx, persistence.ListWorkflowsOptions{BusinessID: "business-1", Active: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].ID)
}

func TestConnectionRepository_SaveReplacesRecord(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ConnectionRepository()

	conn := testutil.CreateTestUnipileConnection(func(c *models.UnipileConnection) {
		c.ConnectionID = "u-1"
		c.Status = models.NormalizeStatus("Connected ")
	})

	record, err := models.NewConnectionRecord(conn)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, record))

	conn.Mode = models.ModeAIOnly
	conn.DefaultFlowID = testutil.StringPtr("wf-1")
	require.NoError(t, repo.Save(ctx, record))

	loaded, err := repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Unipile)
	assert.Equal(t, models.ModeAIOnly, loaded.Unipile.Mode)
	assert.Equal(t, models.FallbackAssignToHuman, loaded.Unipile.FallbackBehavior)
	assert.Equal(t, "wf-1", *loaded.Unipile.DefaultFlowID)
	assert.Equal(t, models.ConnectionStatusActive, loaded.Unipile.Status)

	list, err := repo.List(ctx, persistence.ListConnectionsOptions{BusinessID: "business-1", Kind: models.ConnectionKindUnipile})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, "u-1"))

	loaded, err = repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestChannelRepository_UniqueName(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ChannelRepository()

	require.NoError(t, repo.Save(ctx, &models.BusinessChannel{ID: "c-1", BusinessID: "b-1", Name: "sales"}))

	err := repo.Save(ctx, &models.BusinessChannel{ID: "c-2", BusinessID: "b-1", Name: "sales"})
	assert.True(t, persistence.IsChannelAlreadyExists(err))

	channels, err := repo.List(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "sales", channels[0].Name)
}
