// Package engine runs a complete sync: preflight, hooks, scan, rename
// detection, planning, execution and the run report.
package engine

import (
	"context"

	"github.com/paulschiretz/pgl-sync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-sync/pkg/hook"
)

// HookRunner runs the commands around a sync. *hook.Executor implements it.
type HookRunner interface {
	RunPreSync(ctx context.Context, p *hook.Plan) error
	RunPostSync(ctx context.Context, p *hook.Plan) error
}

// Runner executes sync plans. It holds no per-run state and may be reused.
type Runner struct {
	hooks   HookRunner
	tool    string
	version string
}

// NewRunner creates a Runner. A nil hooks runs commands through the system shell.
func NewRunner(hooks HookRunner) *Runner {
	if hooks == nil {
		hooks = hook.NewExecutor(nil)
	}
	return &Runner{
		hooks:   hooks,
		tool:    buildinfo.Name,
		version: buildinfo.Version,
	}
}
