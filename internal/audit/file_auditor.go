package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/trellisviz/trellis/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of a mutation record.
type fileEntry struct {
	Timestamp  string  `json:"ts"`
	Op         string  `json:"op"`
	Tool       string  `json:"tool,omitempty"`
	Column     string  `json:"column,omitempty"`
	FilterID   string  `json:"filter_id,omitempty"`
	ScatterID  string  `json:"scatter_id,omitempty"`
	Rows       int     `json:"rows"`
	DurationMS int64   `json:"duration_ms"`
	Error      *string `json:"error"`
}

// FileAuditor writes mutation entries as NDJSON (one JSON object per line) to a file.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.MutationEntry) {
	fe := fileEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Op:         entry.Op,
		Tool:       entry.Tool,
		Column:     entry.Column,
		FilterID:   entry.FilterID,
		ScatterID:  entry.ScatterID,
		Rows:       entry.Rows,
		DurationMS: entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; don't fail the mutation for audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
