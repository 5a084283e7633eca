package services

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/persistence/file"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFilePersistence(t *testing.T) persistence.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}
