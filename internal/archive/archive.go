// Package archive implements spec §6's archive format: a
// gzip-compressed copy of the store file plus a sibling JSON index
// summarizing its contents, the shape the Hub tier uses to archive a
// room's store file on teardown (out of scope here) and that the
// `mcs archive` CLI subcommands expose directly against a single
// store.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agentmesh/mcs/internal/store"
)

// Index is the JSON sidecar spec §6 requires next to every
// gzip-compressed store archive.
type Index struct {
	RoomName     string      `json:"room_name"`
	ArchivedAt   string      `json:"archived_at"`
	Agents       []IndexAgent `json:"agents"`
	MessageCount int         `json:"message_count"`
	Tasks        []IndexTask `json:"tasks"`
	DateRange    DateRange   `json:"date_range"`
}

// IndexAgent is one agents[] entry of Index.
type IndexAgent struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// IndexTask is one tasks[] entry of Index.
type IndexTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// DateRange is Index's date_range field: the first and last message
// timestamps in the store, empty if the store has no messages.
type DateRange struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// BuildIndex computes the sidecar index for roomName from st's
// current contents.
func BuildIndex(ctx context.Context, st *store.Store, roomName string) (Index, error) {
	agents, err := st.ListAgents(ctx)
	if err != nil {
		return Index{}, fmt.Errorf("list agents: %w", err)
	}
	idxAgents := make([]IndexAgent, 0, len(agents))
	for _, a := range agents {
		idxAgents = append(idxAgents, IndexAgent{Name: a.Name, Role: a.Role})
	}

	tasks, err := st.ListTasks(ctx, "", "")
	if err != nil {
		return Index{}, fmt.Errorf("list tasks: %w", err)
	}
	idxTasks := make([]IndexTask, 0, len(tasks))
	for _, t := range tasks {
		idxTasks = append(idxTasks, IndexTask{ID: t.ID, Title: t.Title, Status: t.Status})
	}

	var count int
	var first, last sql.NullString
	row := st.DB().QueryRowContext(ctx, `SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM messages`)
	if err := row.Scan(&count, &first, &last); err != nil {
		return Index{}, fmt.Errorf("message date range: %w", err)
	}

	return Index{
		RoomName:     roomName,
		ArchivedAt:   store.Now(),
		Agents:       idxAgents,
		MessageCount: count,
		Tasks:        idxTasks,
		DateRange:    DateRange{First: first.String, Last: last.String},
	}, nil
}

// Export gzip-compresses the store file at dbPath and computes its
// sidecar index. It holds no opinion about where the result is
// written; WriteArchive covers the common "write both files to a
// directory" case.
func Export(ctx context.Context, st *store.Store, dbPath, roomName string) (io.Reader, Index, error) {
	index, err := BuildIndex(ctx, st, roomName)
	if err != nil {
		return nil, Index{}, err
	}

	// Fold the write-ahead log into the main file so the copy holds every committed row.
	if _, err := st.DB().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, Index{}, fmt.Errorf("checkpoint store: %w", err)
	}

	raw, err := os.ReadFile(dbPath) //nolint:gosec // dbPath is operator-configured, not request input
	if err != nil {
		return nil, Index{}, fmt.Errorf("read store file: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, Index{}, fmt.Errorf("compress store file: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, Index{}, fmt.Errorf("close gzip writer: %w", err)
	}

	return &buf, index, nil
}

// WriteArchive runs Export and atomically writes <roomName>.db.gz and
// <roomName>.index.json into destDir, following the teacher's
// write-to-temp-then-rename pattern for crash safety.
func WriteArchive(ctx context.Context, st *store.Store, dbPath, destDir, roomName string) error {
	gz, index, err := Export(ctx, st, dbPath, roomName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	gzBytes, err := io.ReadAll(gz)
	if err != nil {
		return fmt.Errorf("read compressed store: %w", err)
	}
	if err := atomicWrite(filepath.Join(destDir, roomName+".db.gz"), gzBytes, 0o600); err != nil {
		return fmt.Errorf("write store archive: %w", err)
	}

	indexBytes, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	indexBytes = append(indexBytes, '\n')
	if err := atomicWrite(filepath.Join(destDir, roomName+".index.json"), indexBytes, 0o600); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Import decompresses a gzip store archive produced by Export and
// atomically replaces the store file at dbPath. Callers must close
// any existing *store.Store handle on dbPath before calling Import
// and reopen it afterward; Import operates purely on the filesystem.
func Import(dbPath string, gz io.Reader) error {
	gr, err := gzip.NewReader(gz)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		return fmt.Errorf("decompress store archive: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return atomicWrite(dbPath, raw, 0o600)
}

// ReadIndex reads a sidecar index written by WriteArchive.
func ReadIndex(path string) (Index, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied archive path
	if err != nil {
		return Index{}, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, fmt.Errorf("parse index: %w", err)
	}
	return idx, nil
}
