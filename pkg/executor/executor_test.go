package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-sync/pkg/actionplan"
	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/metrics"
	"github.com/paulschiretz/pgl-sync/pkg/pathscan"
	"github.com/paulschiretz/pgl-sync/pkg/report"
)

var fixedTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(abs, fixedTime, fixedTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(b)
}

func exists(root, rel string) bool {
	_, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

func buildPlan(t *testing.T, src, dst, trash string) *actionplan.Plan {
	t.Helper()
	spec := filter.MustCompile("", filter.DefaultOptions())
	srcTree, dstTree, err := pathscan.WalkPair(context.Background(), src, dst, spec, pathscan.Options{})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	plan, err := actionplan.Build(srcTree, dstTree, nil, actionplan.Options{TrashRoot: trash, ModTimeWindow: time.Second})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return plan
}

func statuses(outcomes []report.Outcome) map[report.Status]int {
	m := make(map[report.Status]int)
	for _, o := range outcomes {
		m[o.Status]++
	}
	return m
}

func TestExecuteCopiesIntoMissingDestination(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	writeFile(t, src, "a/b/c.txt", "content")
	writeFile(t, src, "top.txt", "top")

	plan := buildPlan(t, src, dst, "")
	m := &metrics.SyncMetrics{}
	outcomes := Execute(context.Background(), plan, Options{Workers: 2, Metrics: m})

	for _, o := range outcomes {
		if o.Status != report.Succeeded {
			t.Errorf("expected %s to succeed, got %s (%s)", o.Action, o.Status, o.Error)
		}
	}
	if got := readFile(t, dst, "a/b/c.txt"); got != "content" {
		t.Errorf("expected copied content, got %q", got)
	}
	info, err := os.Stat(filepath.Join(dst, "top.txt"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(fixedTime) {
		t.Errorf("expected modification time %v, got %v", fixedTime, info.ModTime())
	}
	if got := m.FilesCopied.Load(); got != 2 {
		t.Errorf("expected 2 files copied, got %d", got)
	}
	if got := m.BytesWritten.Load(); got != int64(len("content")+len("top")) {
		t.Errorf("unexpected bytes written: %d", got)
	}
	if got := m.DirsCreated.Load(); got != 2 {
		t.Errorf("expected 2 folders created, got %d", got)
	}
}

func TestExecuteDryRunChangesNothing(t *testing.T) {
	src, dst, trash := t.TempDir(), t.TempDir(), filepath.Join(t.TempDir(), "trash")
	writeFile(t, src, "new/file.txt", "x")
	writeFile(t, dst, "stale.txt", "old")

	plan := buildPlan(t, src, dst, trash)
	outcomes := Execute(context.Background(), plan, Options{DryRun: true})

	if len(outcomes) != len(plan.Actions) {
		t.Fatalf("expected one outcome per action, got %d for %d", len(outcomes), len(plan.Actions))
	}
	for _, o := range outcomes {
		if o.Status != report.DryRun {
			t.Errorf("expected dry-run status for %s, got %s", o.Action, o.Status)
		}
	}
	if exists(dst, "new") {
		t.Error("dry run created a folder")
	}
	if !exists(dst, "stale.txt") {
		t.Error("dry run recycled a file")
	}
	if exists(trash, "") {
		t.Error("dry run created the trash folder")
	}
}

func TestExecuteRecycle(t *testing.T) {
	src, dst, trash := t.TempDir(), t.TempDir(), filepath.Join(t.TempDir(), "trash")
	writeFile(t, src, "keep.txt", "k")
	writeFile(t, dst, "keep.txt", "k")
	writeFile(t, dst, "old/nested/gone.txt", "g")
	writeFile(t, dst, "old/also.txt", "a")

	plan := buildPlan(t, src, dst, trash)
	m := &metrics.SyncMetrics{}
	outcomes := Execute(context.Background(), plan, Options{Metrics: m})

	if s := statuses(outcomes); s[report.Failed] != 0 {
		t.Fatalf("unexpected failures: %+v", outcomes)
	}
	if exists(dst, "old") {
		t.Error("expected recycled folder to be removed from the destination")
	}
	if got := readFile(t, trash, "old/nested/gone.txt"); got != "g" {
		t.Errorf("expected file in trash, got %q", got)
	}
	if !exists(dst, "keep.txt") {
		t.Error("up-to-date file was touched")
	}
	if got := m.FilesRecycled.Load(); got != 2 {
		t.Errorf("expected 2 files recycled, got %d", got)
	}
	if got := m.DirsRecycled.Load(); got != 2 {
		t.Errorf("expected 2 folders recycled, got %d", got)
	}
	if got := m.FilesUpToDate.Load(); got != 1 {
		t.Errorf("expected 1 file up to date, got %d", got)
	}
}

func TestExecuteRecycleFolderNotEmpty(t *testing.T) {
	dst, trash := t.TempDir(), t.TempDir()
	writeFile(t, dst, "box/unplanned.txt", "u")

	plan := &actionplan.Plan{
		DestRoot:  dst,
		TrashRoot: trash,
		Actions: []actionplan.Action{
			{Kind: actionplan.Recycle, Path: "box", TrashPath: "box", EntryKind: filter.Folder},
		},
	}
	outcomes := Execute(context.Background(), plan, Options{})

	if outcomes[0].Status != report.Skipped || outcomes[0].Detail != report.DetailFolderNotEmpty {
		t.Errorf("expected skipped folder-not-empty, got %s %q", outcomes[0].Status, outcomes[0].Detail)
	}
	if !exists(dst, "box/unplanned.txt") {
		t.Error("folder content was removed")
	}
}

func TestExecuteNeverOverwrites(t *testing.T) {
	dst, trash := t.TempDir(), t.TempDir()
	writeFile(t, dst, "from.txt", "from")
	writeFile(t, dst, "to.txt", "to")
	writeFile(t, dst, "orphan.txt", "orphan")
	writeFile(t, trash, "orphan.txt", "already recycled")

	plan := &actionplan.Plan{
		DestRoot:  dst,
		TrashRoot: trash,
		Actions: []actionplan.Action{
			{Kind: actionplan.Move, Path: "to.txt", Origin: "from.txt", EntryKind: filter.File},
			{Kind: actionplan.Recycle, Path: "orphan.txt", TrashPath: "orphan.txt", EntryKind: filter.File},
		},
	}
	outcomes := Execute(context.Background(), plan, Options{})

	for _, o := range outcomes {
		if o.Status != report.Failed || o.Detail != report.DetailTargetExists {
			t.Errorf("expected %s to fail with target-exists, got %s %q", o.Action, o.Status, o.Detail)
		}
	}
	if got := readFile(t, dst, "to.txt"); got != "to" {
		t.Errorf("move overwrote its target: %q", got)
	}
	if got := readFile(t, trash, "orphan.txt"); got != "already recycled" {
		t.Errorf("recycle overwrote the trash: %q", got)
	}
}

func TestExecuteMove(t *testing.T) {
	dst := t.TempDir()
	writeFile(t, dst, "archive/old.txt", "payload")

	plan := &actionplan.Plan{
		DestRoot: dst,
		Actions: []actionplan.Action{
			{Kind: actionplan.MakeDir, Path: "docs", EntryKind: filter.Folder},
			{Kind: actionplan.Move, Path: "docs/old.txt", Origin: "archive/old.txt", EntryKind: filter.File},
		},
	}
	outcomes := Execute(context.Background(), plan, Options{})

	for _, o := range outcomes {
		if o.Status != report.Succeeded {
			t.Fatalf("expected %s to succeed, got %s (%s)", o.Action, o.Status, o.Error)
		}
	}
	if got := readFile(t, dst, "docs/old.txt"); got != "payload" {
		t.Errorf("unexpected content after move: %q", got)
	}
	if exists(dst, "archive/old.txt") {
		t.Error("origin still exists after move")
	}
}

func TestExecuteCanceled(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, src, "a.txt", "a")
	writeFile(t, src, "same.txt", "s")
	writeFile(t, dst, "same.txt", "s")

	plan := buildPlan(t, src, dst, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := Execute(ctx, plan, Options{})

	for _, o := range outcomes {
		switch o.Action.Kind {
		case actionplan.Skip:
			if o.Status != report.Skipped {
				t.Errorf("expected skip to stay skipped, got %s", o.Status)
			}
		default:
			if o.Status != report.Failed || o.Detail != report.DetailCanceled {
				t.Errorf("expected %s to be canceled, got %s %q", o.Action, o.Status, o.Detail)
			}
		}
	}
	if exists(dst, "a.txt") {
		t.Error("canceled run copied a file")
	}
}

func TestStages(t *testing.T) {
	actions := []actionplan.Action{
		{Kind: actionplan.MakeDir, Path: "a"},
		{Kind: actionplan.MakeDir, Path: "b"},
		{Kind: actionplan.Move, Path: "c"},
		{Kind: actionplan.Copy, Path: "d"},
		{Kind: actionplan.Recycle, Path: "e", EntryKind: filter.File},
		{Kind: actionplan.Recycle, Path: "f", EntryKind: filter.Folder},
		{Kind: actionplan.Skip, Path: "g"},
	}
	got := stages(actions)
	want := []stage{
		{indices: []int{0, 1}, parallel: false},
		{indices: []int{2}, parallel: true},
		{indices: []int{3}, parallel: true},
		{indices: []int{4}, parallel: true},
		{indices: []int{5}, parallel: false},
		{indices: []int{6}, parallel: true},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].parallel != want[i].parallel || len(got[i].indices) != len(want[i].indices) {
			t.Errorf("stage %d: expected %+v, got %+v", i, want[i], got[i])
			continue
		}
		for j := range want[i].indices {
			if got[i].indices[j] != want[i].indices[j] {
				t.Errorf("stage %d: expected %+v, got %+v", i, want[i], got[i])
			}
		}
	}
}
