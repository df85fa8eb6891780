package fstools

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cocommand/cocommand/internal/observability"
	"github.com/cocommand/cocommand/internal/session"
)

// openPathNative launches the OS's default handler for path (Finder's
// "open", xdg-open, or "start"), ported to Go's os/exec since no library
// in reach of this module wraps it.
func openPathNative(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", path)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", path)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/C", "start", "", path)
	default:
		return unsupportedPlatformError{runtime.GOOS}
	}
	return cmd.Run()
}

// revealPathNative selects path in the platform's file manager. macOS's
// "open -R" does this directly; elsewhere there's no equivalent "reveal"
// primitive, so this opens the containing directory instead.
func revealPathNative(ctx context.Context, path string) error {
	if runtime.GOOS == "darwin" {
		return exec.CommandContext(ctx, "open", "-R", path).Run()
	}
	return openPathNative(ctx, filepath.Dir(path))
}

type unsupportedPlatformError struct{ goos string }

func (e unsupportedPlatformError) Error() string {
	return "open_path is not supported on " + e.goos
}

type pathInput struct {
	Path string `json:"path"`
}

func validatePath(in pathInput) error {
	if strings.TrimSpace(in.Path) == "" {
		return invalidInputError{errEmptyPath}
	}
	return nil
}

type openPathTool struct {
	metrics *observability.Metrics
}

func (t *openPathTool) Descriptor() session.ToolDescriptor {
	return session.ToolDescriptor{
		Name:        "open_path",
		Description: "Open a filesystem path with the OS's default handler (Finder/Explorer/xdg-open).",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}
}

func (t *openPathTool) Execute(ctx context.Context, input json.RawMessage) (session.ToolResult, error) {
	start := time.Now()
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errorResult(invalidInputError{err})
	}
	if err := validatePath(in); err != nil {
		return errorResult(err)
	}
	if err := openPathNative(ctx, in.Path); err != nil {
		return errorResult(err)
	}
	out, _ := json.Marshal(map[string]string{"path": in.Path})
	if t.metrics != nil {
		t.metrics.RecordToolExecution("filesystem_open_path", "ok", time.Since(start).Seconds())
	}
	// Launching an external process is an observable side effect outside
	// this run's sandbox; the run stops here rather than chaining further
	// tool calls unattended.
	return session.ToolResult{Output: out, ApprovalRequired: true}, nil
}

type revealPathTool struct {
	metrics *observability.Metrics
}

func (t *revealPathTool) Descriptor() session.ToolDescriptor {
	return session.ToolDescriptor{
		Name:        "reveal_path",
		Description: "Reveal a filesystem path in the OS file manager, selecting it if the platform supports that (macOS); otherwise opens its containing directory.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}
}

func (t *revealPathTool) Execute(ctx context.Context, input json.RawMessage) (session.ToolResult, error) {
	start := time.Now()
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errorResult(invalidInputError{err})
	}
	if err := validatePath(in); err != nil {
		return errorResult(err)
	}
	if err := revealPathNative(ctx, in.Path); err != nil {
		return errorResult(err)
	}
	out, _ := json.Marshal(map[string]string{"path": in.Path})
	if t.metrics != nil {
		t.metrics.RecordToolExecution("filesystem_reveal_path", "ok", time.Since(start).Seconds())
	}
	return session.ToolResult{Output: out, ApprovalRequired: true}, nil
}
