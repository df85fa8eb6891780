package fstools

import (
	"github.com/cocommand/cocommand/internal/observability"
	"github.com/cocommand/cocommand/internal/session"
)

// NewExtension builds the "filesystem" extension: search, index_status,
// open_path, and reveal_path, all sharing resolver for root lookup.
func NewExtension(resolver RootResolver, metrics *observability.Metrics) *session.Extension {
	return &session.Extension{
		ID:      "filesystem",
		Name:    "Filesystem",
		Tags:    []string{"files", "search", "index", "filesystem"},
		Summary: "Search the indexed filesystem with a boolean query language, check index build status, and open or reveal paths in the OS file manager.",
		Tools: map[string]session.Tool{
			"search":       &searchTool{resolver: resolver, metrics: metrics},
			"index_status": &indexStatusTool{resolver: resolver, metrics: metrics},
			"open_path":    &openPathTool{metrics: metrics},
			"reveal_path":  &revealPathTool{metrics: metrics},
		},
	}
}
