package archive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mcs/internal/store"
)

func newTestStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestBuildIndexReflectsAgentsAndTasks(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "room.db")
	st := newTestStore(t, dbPath)

	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", "lead", "", "online"))
	require.NoError(t, st.RegisterAgent(ctx, "dev1", "core", "dev", "", "online"))

	index, err := BuildIndex(ctx, st, "room-42")
	require.NoError(t, err)
	require.Equal(t, "room-42", index.RoomName)
	require.Len(t, index.Agents, 2)
	require.Equal(t, 0, index.MessageCount)
}

func TestExportThenImportRoundTripsStoreFile(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "room.db")
	st := newTestStore(t, dbPath)
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", "lead", "", "online"))

	gz, index, err := Export(ctx, st, dbPath, "room-42")
	require.NoError(t, err)
	require.Equal(t, "room-42", index.RoomName)

	gzBytes, err := io.ReadAll(gz)
	require.NoError(t, err)
	require.NotEmpty(t, gzBytes)

	restorePath := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, Import(restorePath, bytes.NewReader(gzBytes)))

	restored := newTestStore(t, restorePath)
	agents, err := restored.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "lead1", agents[0].Name)
}

func TestWriteArchiveWritesBothSidecarFiles(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "room.db")
	st := newTestStore(t, dbPath)
	require.NoError(t, st.RegisterAgent(ctx, "lead1", "core", "lead", "", "online"))

	destDir := filepath.Join(t.TempDir(), "archives")
	require.NoError(t, WriteArchive(ctx, st, dbPath, destDir, "room-42"))

	_, err := os.Stat(filepath.Join(destDir, "room-42.db.gz"))
	require.NoError(t, err)

	index, err := ReadIndex(filepath.Join(destDir, "room-42.index.json"))
	require.NoError(t, err)
	require.Equal(t, "room-42", index.RoomName)
	require.Len(t, index.Agents, 1)
}

func TestImportRejectsNonGzipData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "restored.db")
	err := Import(dbPath, bytes.NewReader([]byte("not gzip data")))
	require.Error(t, err)
}
