package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulschiretz/pgl-sync/pkg/actionplan"
	"github.com/paulschiretz/pgl-sync/pkg/executor"
	"github.com/paulschiretz/pgl-sync/pkg/hints"
	"github.com/paulschiretz/pgl-sync/pkg/hook"
	"github.com/paulschiretz/pgl-sync/pkg/metrics"
	"github.com/paulschiretz/pgl-sync/pkg/pathscan"
	"github.com/paulschiretz/pgl-sync/pkg/planner"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/preflight"
	"github.com/paulschiretz/pgl-sync/pkg/rename"
	"github.com/paulschiretz/pgl-sync/pkg/report"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// --- Run phases ---
//
// 1. Preflight: roots exist, are folders and do not nest; the destination is
//    writable. Failures here are fatal and nothing has been touched.
// 2. Pre-sync hooks. A failing command aborts the run.
// 3. Scan: source and destination are walked concurrently under one filter.
// 4. Rename detection over source-only and destination-only files.
// 5. Planning. The whole action list exists before anything changes.
// 6. Execution. Per-action failures are recorded and the rest still run.
// 7. Report: logged, optionally written to a file.
// Post-sync hooks run last, whatever happened before, unless preflight failed.

// ExecuteSync mirrors absSourcePath into absTargetPath as planned by p.
//
// A returned report with a nil error means every action succeeded, was skipped
// or was simulated. When actions fail, both the report and an error are
// returned. Fatal errors before execution return a nil report.
func (r *Runner) ExecuteSync(ctx context.Context, absSourcePath, absTargetPath string, p *planner.SyncPlan) (*report.Report, error) {
	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// The free space check needs the plan and runs after planning.
	early := *p.Preflight
	early.FreeSpace = false
	warnings, err := preflight.Run(&early, absSourcePath, absTargetPath, p.Trash, 0)
	if err != nil {
		return nil, fmt.Errorf("preflight failed: %w", err)
	}

	if p.Hooks != nil {
		if err := r.hooks.RunPreSync(ctx, p.Hooks); err != nil && !hints.IsHint(err) {
			errMsg := "pre-sync hook failed"
			if errors.Is(err, context.Canceled) {
				errMsg = "pre-sync hook canceled"
			}
			return nil, fmt.Errorf("%s: %w", errMsg, err)
		}
		defer func() {
			err := r.hooks.RunPostSync(ctx, p.Hooks)
			switch {
			case err == nil || hints.Is(err, hook.ErrNothingToExecute):
			case errors.Is(err, context.Canceled):
				plog.Info("Post-sync hooks skipped due to cancellation")
			default:
				plog.Warn("Post-sync hook failed", "error", err)
			}
		}()
	}

	if p.DryRun {
		plog.Info("Starting sync (DRY RUN)", "source", absSourcePath, "target", absTargetPath)
	} else {
		plog.Info("Starting sync", "source", absSourcePath, "target", absTargetPath)
	}

	rep := report.New(r.tool, r.version, absSourcePath, absTargetPath, p.Trash, p.FilterString, p.DryRun)
	rep.AddIssues(warnings...)

	var m metrics.Metrics = &metrics.NoopMetrics{}
	if p.Metrics {
		m = &metrics.SyncMetrics{}
		if p.ProgressInterval > 0 {
			m.StartProgress("Sync progress", p.ProgressInterval)
			defer m.StopProgress()
		}
	}

	// --- Scan ---
	scanOpts := p.Scan
	scanOpts.Metrics = m
	srcTree, dstTree, err := pathscan.WalkPair(ctx, absSourcePath, absTargetPath, p.Filter, scanOpts)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	rep.AddIssues(srcTree.Errors...)
	rep.AddIssues(dstTree.Errors...)
	plog.Debug("Scan complete",
		"source_entries", srcTree.Len(),
		"target_entries", dstTree.Len(),
		"scan_errors", len(srcTree.Errors)+len(dstTree.Errors),
	)

	// --- Rename detection ---
	var renames []rename.Hint
	if p.RenameEnabled {
		renameOpts := p.Rename
		renameOpts.Metrics = m
		res, err := rename.Detect(ctx, srcTree, dstTree, pathscan.OnlyIn(srcTree, dstTree), pathscan.OnlyIn(dstTree, srcTree), renameOpts)
		if err != nil {
			return nil, fmt.Errorf("rename detection failed: %w", err)
		}
		renames = res.Hints
		rep.AddIssues(res.Warnings...)
	}

	// --- Planning ---
	plan, err := actionplan.Build(srcTree, dstTree, renames, p.Actions)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	logPlan(plan)

	if p.Preflight.FreeSpace && !p.DryRun {
		if w := preflight.CheckFreeSpace(absTargetPath, plan.CopyBytes()); w != nil {
			plog.Warn("Preflight warning", "detail", w)
			rep.AddIssues(w)
		}
	}

	// --- Execution ---
	execOpts := p.Execute
	execOpts.Metrics = m
	outcomes := executor.Execute(ctx, plan, execOpts)

	// --- Report ---
	rep.Finish(outcomes, srcTree.FilesExcluded, srcTree.FoldersExcluded)
	m.StopProgress()
	m.LogSummary("Sync metrics")
	rep.Log()

	if p.ReportPath != "" {
		if err := rep.Write(p.ReportPath); err != nil {
			return rep, fmt.Errorf("failed to write report: %w", err)
		}
		plog.Info("Report written", "path", p.ReportPath)
	}

	if err := context.Cause(ctx); err != nil {
		return rep, fmt.Errorf("sync canceled: %w", err)
	}
	if err := rep.Err(); err != nil {
		return rep, err
	}
	plog.Info("Sync completed")
	return rep, nil
}

func logPlan(plan *actionplan.Plan) {
	counts := plan.Count()
	args := make([]any, 0, 2*len(actionplan.Kinds)+2)
	for _, k := range actionplan.Kinds {
		args = append(args, k.String(), counts[k])
	}
	args = append(args, "copy_bytes", util.ByteCountIEC(plan.CopyBytes()))
	plog.Info("Plan ready", args...)
}
