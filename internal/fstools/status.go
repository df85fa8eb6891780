package fstools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cocommand/cocommand/internal/observability"
	"github.com/cocommand/cocommand/internal/session"
)

// IndexStatus is a point-in-time snapshot of one root's Index Manager
// state, assembled from atomics without blocking a query.
type IndexStatus struct {
	Root         string     `json:"root"`
	State        string     `json:"state"`
	ScannedFiles int64      `json:"scanned_files"`
	ScannedDirs  int64      `json:"scanned_dirs"`
	Errors       int64      `json:"errors"`
	LastError    string     `json:"last_error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastUpdateAt *time.Time `json:"last_update_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type indexStatusInput struct {
	Root string `json:"root,omitempty"`
}

type indexStatusTool struct {
	resolver RootResolver
	metrics  *observability.Metrics
}

func (t *indexStatusTool) Descriptor() session.ToolDescriptor {
	return session.ToolDescriptor{
		Name:        "index_status",
		Description: "Report the build state and progress counters for one indexed root.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"root": {"type": "string", "description": "Indexed root to inspect; defaults to the configured workspace root."}
			}
		}`),
	}
}

func (t *indexStatusTool) Execute(ctx context.Context, input json.RawMessage) (session.ToolResult, error) {
	start := time.Now()
	var in indexStatusInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return errorResult(invalidInputError{err})
		}
	}
	root := in.Root
	if root == "" {
		root = t.resolver.DefaultRoot()
	}
	mgr, err := t.resolver.Manager(ctx, root)
	if err != nil {
		return errorResult(err)
	}

	state, progress, lastErr := mgr.Status()
	status := IndexStatus{
		Root:         root,
		State:        state.String(),
		ScannedFiles: progress.ScannedFiles,
		ScannedDirs:  progress.ScannedDirs,
		Errors:       progress.Errors,
		LastError:    lastErr,
		StartedAt:    progress.StartedAt,
		LastUpdateAt: progress.LastUpdateAt,
		FinishedAt:   progress.FinishedAt,
	}

	out, err := json.Marshal(status)
	if err != nil {
		return errorResult(err)
	}
	if t.metrics != nil {
		t.metrics.RecordToolExecution("filesystem_index_status", "ok", time.Since(start).Seconds())
	}
	return session.ToolResult{Output: out}, nil
}
