// Package report records what a sync did, or would do in a dry run, action by
// action, and summarizes it per action kind.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paulschiretz/pgl-sync/pkg/actionplan"
	"github.com/paulschiretz/pgl-sync/pkg/hints"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// Status is the result of a single action.
type Status int

const (
	Succeeded Status = iota
	Failed
	Skipped
	DryRun
)

var statusToString = map[Status]string{
	Succeeded: "succeeded",
	Failed:    "failed",
	Skipped:   "skipped",
	DryRun:    "dry-run",
}
var stringToStatus map[string]Status

func init() {
	stringToStatus = util.InvertMap(statusToString)
}

func (s Status) String() string {
	if str, ok := statusToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_status(%d)", s)
}

// MarshalJSON implements the json.Marshaler interface for Status.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("status should be a string, got %s", data)
	}
	status, ok := stringToStatus[str]
	if !ok {
		return fmt.Errorf("invalid status: %q", str)
	}
	*s = status
	return nil
}

// Detail values for outcomes that did not run as planned.
const (
	DetailCanceled        = "canceled"
	DetailFolderNotEmpty  = "folder-not-empty"
	DetailTargetExists    = "target-exists"
	DetailDestinationRoot = "destination-root-unavailable"
)

// Outcome is what happened to one planned action.
type Outcome struct {
	Action actionplan.Action `json:"action"`
	Status Status            `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// KindSummary counts the outcomes of one action kind.
type KindSummary struct {
	Planned   int `json:"planned"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	DryRun    int `json:"dry_run"`
}

// Summary aggregates a run.
type Summary struct {
	ByKind          map[string]KindSummary `json:"by_kind"`
	Succeeded       int                    `json:"succeeded"`
	Failed          int                    `json:"failed"`
	Skipped         int                    `json:"skipped"`
	DryRun          int                    `json:"dry_run"`
	FilesExcluded   int64                  `json:"files_excluded"`
	FoldersExcluded int64                  `json:"folders_excluded"`
	BytesCopied     int64                  `json:"bytes_copied"`
	BytesRecycled   int64                  `json:"bytes_recycled"`
	// NetBytes is the change in destination size: copied bytes minus replaced
	// and recycled bytes. In a dry run it is the projected change.
	NetBytes int64 `json:"net_bytes"`
}

// Report is the complete record of one run.
type Report struct {
	RunID       string    `json:"run_id"`
	Tool        string    `json:"tool"`
	Version     string    `json:"version"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Trash       string    `json:"trash,omitempty"`
	Filter      string    `json:"filter"`
	DryRun      bool      `json:"dry_run"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Outcomes    []Outcome `json:"outcomes"`
	ScanErrors  []string  `json:"scan_errors,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Summary     Summary   `json:"summary"`
}

// New starts a report with a fresh run id.
func New(tool, version, source, destination, trash, filter string, dryRun bool) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		Tool:        tool,
		Version:     version,
		Source:      source,
		Destination: destination,
		Trash:       trash,
		Filter:      filter,
		DryRun:      dryRun,
		StartedAt:   time.Now(),
	}
}

// AddIssues files scan errors and warnings. Hints go to Warnings, the rest to ScanErrors.
func (r *Report) AddIssues(errs ...error) {
	for _, err := range errs {
		if err == nil {
			continue
		}
		if hints.IsHint(err) {
			r.Warnings = append(r.Warnings, err.Error())
		} else {
			r.ScanErrors = append(r.ScanErrors, err.Error())
		}
	}
}

// Finish records the outcomes and computes the summary.
func (r *Report) Finish(outcomes []Outcome, filesExcluded, foldersExcluded int64) {
	r.Outcomes = outcomes
	r.FinishedAt = time.Now()

	s := Summary{
		ByKind:          make(map[string]KindSummary, len(actionplan.Kinds)),
		FilesExcluded:   filesExcluded,
		FoldersExcluded: foldersExcluded,
	}
	for _, o := range outcomes {
		ks := s.ByKind[o.Action.Kind.String()]
		ks.Planned++
		switch o.Status {
		case Succeeded:
			ks.Succeeded++
			s.Succeeded++
		case Failed:
			ks.Failed++
			s.Failed++
		case Skipped:
			ks.Skipped++
			s.Skipped++
		case DryRun:
			ks.DryRun++
			s.DryRun++
		}
		s.ByKind[o.Action.Kind.String()] = ks

		if o.Status != Succeeded && o.Status != DryRun {
			continue
		}
		switch {
		case o.Action.Kind == actionplan.Copy:
			s.BytesCopied += o.Action.Size
			s.NetBytes += o.Action.Size - o.Action.Replaces
		case o.Action.Kind == actionplan.Recycle:
			s.BytesRecycled += o.Action.Size
			s.NetBytes -= o.Action.Size
		}
	}
	r.Summary = s
}

// Failed reports whether any action failed.
func (r *Report) Failed() bool {
	return r.Summary.Failed > 0
}

// Err returns an error describing failed actions, or nil.
func (r *Report) Err() error {
	if !r.Failed() {
		return nil
	}
	var errs []error
	for _, o := range r.Outcomes {
		if o.Status == Failed {
			errs = append(errs, fmt.Errorf("%s: %s", o.Action, o.Error))
		}
	}
	return fmt.Errorf("%d action(s) failed: %w", r.Summary.Failed, errors.Join(errs...))
}

// Log writes the summary through plog.
func (r *Report) Log() {
	for _, k := range actionplan.Kinds {
		ks, ok := r.Summary.ByKind[k.String()]
		if !ok {
			continue
		}
		plog.Info("SUM "+k.String(),
			"planned", ks.Planned,
			"succeeded", ks.Succeeded,
			"failed", ks.Failed,
			"skipped", ks.Skipped,
			"dry_run", ks.DryRun,
		)
	}
	for _, w := range r.Warnings {
		plog.Warn("Warning", "detail", w)
	}
	for _, e := range r.ScanErrors {
		plog.Warn("Scan error", "detail", e)
	}
	for _, o := range r.Outcomes {
		if o.Status == Failed {
			plog.Error("FAILED", "action", o.Action.String(), "error", o.Error)
		}
	}
	plog.Info("Sync summary",
		"run_id", r.RunID,
		"dry_run", r.DryRun,
		"succeeded", r.Summary.Succeeded,
		"failed", r.Summary.Failed,
		"skipped", r.Summary.Skipped,
		"files_excluded", r.Summary.FilesExcluded,
		"folders_excluded", r.Summary.FoldersExcluded,
		"bytes_copied", util.ByteCountIEC(r.Summary.BytesCopied),
		"net_change", util.ByteCountIEC(r.Summary.NetBytes),
		"duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
	)
}
