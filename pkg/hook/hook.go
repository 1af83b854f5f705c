// Package hook runs user supplied shell commands before and after a sync, for
// example to mount the destination volume or to notify a monitoring system.
package hook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/paulschiretz/pgl-sync/pkg/hints"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
)

// ErrNothingToExecute is returned when a phase has no commands.
var ErrNothingToExecute = hints.New("nothing to execute")

// CommandContext builds the process for a hook command. It matches exec.CommandContext.
type CommandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

type Executor struct {
	commandContext CommandContext
	stdout         io.Writer
	stderr         io.Writer
}

// NewExecutor creates an Executor. A nil commandContext uses exec.CommandContext.
func NewExecutor(commandContext CommandContext) *Executor {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &Executor{
		commandContext: commandContext,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
	}
}

// RunPreSync runs the pre-sync commands in order. The first failing command
// stops the phase and its error is returned: the sync must not start.
func (e *Executor) RunPreSync(ctx context.Context, p *Plan) error {
	return e.run(ctx, "pre-sync", p.PreSync, p.DryRun, true)
}

// RunPostSync runs every post-sync command. Failures are logged and returned
// joined as a hint; they never change the outcome of the sync.
func (e *Executor) RunPostSync(ctx context.Context, p *Plan) error {
	return e.run(ctx, "post-sync", p.PostSync, p.DryRun, false)
}

func (e *Executor) run(ctx context.Context, phase string, commands []string, dryRun, failFast bool) error {
	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info("Running hook commands", "phase", phase, "count", len(commands))

	var errs []error
	for _, command := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}

		if dryRun {
			plog.Notice("[DRY RUN] HOOK", "phase", phase, "command", command)
			continue
		}
		plog.Notice("HOOK", "phase", phase, "command", command)

		cmd := e.createCommand(ctx, command)
		cmd.Stdout = e.stdout
		cmd.Stderr = e.stderr

		if err := cmd.Run(); err != nil {
			// A canceled context kills the process; report the cancellation instead.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err = fmt.Errorf("%s command '%s' failed: %w", phase, command, err)
			if failFast {
				return err
			}
			plog.Warn("Hook command failed", "phase", phase, "command", command, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return hints.Wrap(errors.Join(errs...))
	}
	return nil
}
