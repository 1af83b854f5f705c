// Package planner turns a validated configuration into the options of every
// stage of a sync run.
package planner

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-sync/pkg/actionplan"
	"github.com/paulschiretz/pgl-sync/pkg/config"
	"github.com/paulschiretz/pgl-sync/pkg/executor"
	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/hook"
	"github.com/paulschiretz/pgl-sync/pkg/pathscan"
	"github.com/paulschiretz/pgl-sync/pkg/pool"
	"github.com/paulschiretz/pgl-sync/pkg/preflight"
	"github.com/paulschiretz/pgl-sync/pkg/rename"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// systemExcludePatterns keep the tool's own files out of both walks, so the
// config file is never recycled and leftovers of an interrupted copy are
// neither mirrored nor reported.
var systemExcludePatterns = []string{
	config.ConfigFileName,
	"**/pgl-sync-*.tmp",
	".pgl-sync-writetest.tmp",
}

type SyncPlan struct {
	DryRun  bool
	Metrics bool

	Source string
	Target string
	Trash  string

	// FilterString is the effective filter: system and configured excludes
	// followed by the configured spec.
	FilterString string
	Filter       *filter.Spec
	CaseMode     CaseMode

	Preflight *preflight.Plan
	Hooks     *hook.Plan
	Scan      pathscan.Options

	RenameEnabled bool
	Rename        rename.Options

	Actions actionplan.Options
	Execute executor.Options

	ReportPath string
	LogFile    string

	// ProgressInterval enables a periodic progress line when metrics are on.
	// Zero disables it. The caller sets it, typically only for terminals.
	ProgressInterval time.Duration
}

// GenerateSyncPlan derives the plan of a sync run from cfg. The filter is
// compiled here, so a malformed filter fails before anything is scanned.
func GenerateSyncPlan(cfg config.Config) (*SyncPlan, error) {
	dryRun := cfg.Runtime.DryRun
	metrics := cfg.Engine.Metrics

	caseMode, err := ParseCaseMode(cfg.Filter.CaseSensitivity)
	if err != nil {
		return nil, err
	}

	filterOpts := filter.Options{
		IgnoreHidden: cfg.Filter.IgnoreHidden,
		FoldCase:     caseMode.FoldCase(),
	}
	if _, err := filter.Compile(cfg.Filter.Spec, filterOpts); err != nil {
		return nil, err
	}

	excludes := append([]string{}, systemExcludePatterns...)
	for _, p := range []string{cfg.Runtime.ReportPath, cfg.Runtime.LogFile} {
		if rel, ok := relativeTo(cfg.Target, p); ok {
			excludes = append(excludes, rel)
		}
	}
	filterString := filter.Prepend(cfg.FilterSpec(), filter.Exclude, excludes...)

	spec, err := filter.Compile(filterString, filterOpts)
	if err != nil {
		return nil, err
	}

	trash := cfg.TrashPath()
	perf := cfg.Engine.Performance

	return &SyncPlan{
		DryRun:  dryRun,
		Metrics: metrics,

		Source: cfg.Source,
		Target: cfg.Target,
		Trash:  trash,

		FilterString: filterString,
		Filter:       spec,
		CaseMode:     caseMode,

		Preflight: &preflight.Plan{
			SourceAccessible: true,
			TargetAccessible: true,
			TargetWriteable:  true,
			PathNesting:      true,
			TrashDevice:      trash != "",
			FreeSpace:        true,
			DryRun:           dryRun,
		},
		Hooks: &hook.Plan{
			PreSync:  cfg.Hooks.PreSync,
			PostSync: cfg.Hooks.PostSync,
			DryRun:   dryRun,
		},
		Scan: pathscan.Options{
			FollowSymlinks: cfg.Sync.FollowSymlinks,
		},

		RenameEnabled: cfg.Rename.Enabled,
		Rename: rename.Options{
			Threshold:    cfg.Rename.ThresholdBytes,
			MetadataOnly: cfg.Rename.MetadataOnly,
			Workers:      perf.HashWorkers,
			Buffers:      pool.NewFixedBufferPool(int64(perf.BufferSizeKB) * 1024),
		},

		Actions: actionplan.Options{
			TrashRoot:     trash,
			ModTimeWindow: time.Duration(cfg.Sync.ModTimeWindowSeconds) * time.Second,
		},
		Execute: executor.Options{
			DryRun:     dryRun,
			Workers:    perf.SyncWorkers,
			RetryCount: cfg.Sync.RetryCount,
			RetryWait:  time.Duration(cfg.Sync.RetryWaitSeconds) * time.Second,
		},

		ReportPath: cfg.Runtime.ReportPath,
		LogFile:    cfg.Runtime.LogFile,
	}, nil
}

// relativeTo returns p as a forward-slash path relative to root when p lies
// below root.
func relativeTo(root, p string) (string, bool) {
	if root == "" || p == "" {
		return "", false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absP, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absP)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return util.NormalizePath(rel), true
}
