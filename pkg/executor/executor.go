// Package executor applies an action plan to the file system.
//
// Actions run in stages: folders are created first, then moves, copies and file
// recycles run on a worker pool, and recycled folders are removed last, deepest
// first. Each stage finishes before the next one starts. A failed action is
// recorded in its outcome and never aborts the run; only cancellation stops
// the remaining actions.
package executor

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/paulschiretz/pgl-sync/pkg/actionplan"
	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/metrics"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/pool"
	"github.com/paulschiretz/pgl-sync/pkg/report"
	"github.com/paulschiretz/pgl-sync/pkg/sharded"
)

const (
	minCopyBuffer = 4 * 1024
	maxCopyBuffer = 1024 * 1024
)

// Options controls execution.
type Options struct {
	DryRun     bool
	Workers    int
	RetryCount int
	RetryWait  time.Duration
	// Buffers supplies copy buffers. Nil creates a private pool.
	Buffers *pool.BucketedBufferPool
	Metrics metrics.Metrics
}

type executor struct {
	ctx  context.Context
	plan *actionplan.Plan
	opts Options

	metrics metrics.Metrics
	buffers *pool.BucketedBufferPool

	// Folders known to exist, keyed by absolute path.
	dirCache   *sharded.Set
	dirSFGroup singleflight.Group
}

// Execute runs every action of plan and returns one outcome per action, in
// plan order.
func Execute(ctx context.Context, plan *actionplan.Plan, opts Options) []report.Outcome {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	e := &executor{
		ctx:      ctx,
		plan:     plan,
		opts:     opts,
		metrics:  metrics.OrNoop(opts.Metrics),
		buffers:  opts.Buffers,
		dirCache: sharded.NewSet(sharded.DefaultShards),
	}
	if e.buffers == nil {
		e.buffers = pool.NewBucketedBufferPool(minCopyBuffer, maxCopyBuffer)
	}

	outcomes := make([]report.Outcome, len(plan.Actions))
	done := make([]bool, len(plan.Actions))

	if !opts.DryRun && plan.Mutating() {
		if err := e.ensureDir(plan.DestRoot, 0755); err != nil {
			plog.Error("Destination root is unavailable", "path", plan.DestRoot, "error", err)
			for i, a := range plan.Actions {
				if a.Kind == actionplan.Skip {
					outcomes[i] = e.skip(a)
				} else {
					outcomes[i] = e.fail(a, report.DetailDestinationRoot, err)
				}
			}
			return outcomes
		}
	}

	for _, stage := range stages(plan.Actions) {
		if stage.parallel {
			e.runParallel(stage.indices, outcomes, done)
		} else {
			e.runSequential(stage.indices, outcomes, done)
		}
	}

	for i, a := range plan.Actions {
		switch {
		case done[i]:
		case a.Kind == actionplan.Skip:
			outcomes[i] = e.skip(a)
		default:
			outcomes[i] = e.fail(a, report.DetailCanceled, context.Cause(ctx))
		}
	}
	return outcomes
}

type stage struct {
	indices  []int
	parallel bool
}

// stages groups the action indices into barriers. The plan is already ordered,
// so each stage is a run of consecutive actions of the same class.
func stages(actions []actionplan.Action) []stage {
	var out []stage
	class := func(a actionplan.Action) (int, bool) {
		switch a.Kind {
		case actionplan.MakeDir:
			return 0, false
		case actionplan.Move:
			return 1, true
		case actionplan.Copy:
			return 2, true
		case actionplan.Recycle:
			if a.EntryKind == filter.Folder {
				return 4, false
			}
			return 3, true
		default:
			return 5, true
		}
	}
	last := -1
	for i, a := range actions {
		c, parallel := class(a)
		if c != last {
			out = append(out, stage{parallel: parallel})
			last = c
		}
		out[len(out)-1].indices = append(out[len(out)-1].indices, i)
	}
	return out
}

func (e *executor) runSequential(indices []int, outcomes []report.Outcome, done []bool) {
	for _, i := range indices {
		if e.ctx.Err() != nil {
			return
		}
		outcomes[i] = e.run(e.plan.Actions[i])
		done[i] = true
	}
}

// runParallel fans the actions out to the workers. Each worker writes only the
// outcome slots of the indices it received.
func (e *executor) runParallel(indices []int, outcomes []report.Outcome, done []bool) {
	work := make(chan int)
	var wg sync.WaitGroup
	for range min(e.opts.Workers, len(indices)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-e.ctx.Done():
					return
				case i, ok := <-work:
					if !ok {
						return
					}
					outcomes[i] = e.run(e.plan.Actions[i])
					done[i] = true
				}
			}
		}()
	}

feed:
	for _, i := range indices {
		select {
		case <-e.ctx.Done():
			break feed
		case work <- i:
		}
	}
	close(work)
	wg.Wait()
}

func (e *executor) run(a actionplan.Action) report.Outcome {
	if a.Kind == actionplan.Skip {
		return e.skip(a)
	}
	if err := e.ctx.Err(); err != nil {
		return e.fail(a, report.DetailCanceled, context.Cause(e.ctx))
	}
	if e.opts.DryRun {
		plog.Notice("[DRY RUN] "+dryRunVerb(a.Kind), "path", a.Path, "origin", a.Origin, "trash", a.TrashPath)
		return report.Outcome{Action: a, Status: report.DryRun}
	}

	switch a.Kind {
	case actionplan.MakeDir:
		return e.makeDir(a)
	case actionplan.Move:
		return e.move(a)
	case actionplan.Copy:
		return e.copy(a)
	case actionplan.Recycle:
		if a.EntryKind == filter.Folder {
			return e.recycleFolder(a)
		}
		return e.recycleFile(a)
	}
	return report.Outcome{Action: a, Status: report.Skipped}
}

func (e *executor) skip(a actionplan.Action) report.Outcome {
	if a.Reason == actionplan.ReasonUpToDate && a.EntryKind == filter.File {
		e.metrics.AddFilesUpToDate(1)
	}
	plog.Debug("SKIP", "path", a.Path, "reason", a.Reason)
	return report.Outcome{Action: a, Status: report.Skipped, Detail: a.Reason}
}

func (e *executor) fail(a actionplan.Action, detail string, err error) report.Outcome {
	e.metrics.AddFailures(1)
	o := report.Outcome{Action: a, Status: report.Failed, Detail: detail}
	if err != nil {
		o.Error = err.Error()
	}
	if detail != report.DetailCanceled {
		plog.Warn("Action failed", "action", a.String(), "error", err)
	}
	return o
}

func (e *executor) succeed(a actionplan.Action) report.Outcome {
	return report.Outcome{Action: a, Status: report.Succeeded}
}

func dryRunVerb(k actionplan.Kind) string {
	switch k {
	case actionplan.MakeDir:
		return "DIR"
	case actionplan.Move:
		return "MOVE"
	case actionplan.Copy:
		return "COPY"
	case actionplan.Recycle:
		return "RECYCLE"
	}
	return "SKIP"
}

// destPath maps a plan path below the destination root to an absolute path.
func (e *executor) destPath(rel string) string {
	return filepath.Join(e.plan.DestRoot, filepath.FromSlash(rel))
}

func (e *executor) sourcePath(rel string) string {
	return filepath.Join(e.plan.SourceRoot, filepath.FromSlash(rel))
}

func (e *executor) trashPath(rel string) string {
	return filepath.Join(e.plan.TrashRoot, filepath.FromSlash(rel))
}
