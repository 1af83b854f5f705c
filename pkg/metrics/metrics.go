package metrics

import (
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// Metrics defines the interface for collecting and reporting synchronization statistics.
// It is shared by the walker, the rename detector and the executor.
type Metrics interface {
	AddEntriesScanned(n int64)
	AddFilesExcluded(n int64)
	AddDirsExcluded(n int64)
	AddBytesHashed(n int64)
	AddFilesCopied(n int64)
	AddFilesMoved(n int64)
	AddFilesRecycled(n int64)
	AddFilesUpToDate(n int64)
	AddDirsCreated(n int64)
	AddDirsRecycled(n int64)
	AddBytesWritten(n int64)
	AddFailures(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// SyncMetrics holds the atomic counters for tracking the sync operation's progress.
// It is the concrete implementation of the Metrics interface.
type SyncMetrics struct {
	EntriesScanned atomic.Int64
	FilesExcluded  atomic.Int64
	DirsExcluded   atomic.Int64
	BytesHashed    atomic.Int64
	FilesCopied    atomic.Int64
	FilesMoved     atomic.Int64
	FilesRecycled  atomic.Int64
	FilesUpToDate  atomic.Int64
	DirsCreated    atomic.Int64
	DirsRecycled   atomic.Int64
	BytesWritten   atomic.Int64
	Failures       atomic.Int64

	stopChan  chan struct{}
	startTime time.Time
}

func (m *SyncMetrics) AddEntriesScanned(n int64) { m.EntriesScanned.Add(n) }
func (m *SyncMetrics) AddFilesExcluded(n int64)  { m.FilesExcluded.Add(n) }
func (m *SyncMetrics) AddDirsExcluded(n int64)   { m.DirsExcluded.Add(n) }
func (m *SyncMetrics) AddBytesHashed(n int64)    { m.BytesHashed.Add(n) }
func (m *SyncMetrics) AddFilesCopied(n int64)    { m.FilesCopied.Add(n) }
func (m *SyncMetrics) AddFilesMoved(n int64)     { m.FilesMoved.Add(n) }
func (m *SyncMetrics) AddFilesRecycled(n int64)  { m.FilesRecycled.Add(n) }
func (m *SyncMetrics) AddFilesUpToDate(n int64)  { m.FilesUpToDate.Add(n) }
func (m *SyncMetrics) AddDirsCreated(n int64)    { m.DirsCreated.Add(n) }
func (m *SyncMetrics) AddDirsRecycled(n int64)   { m.DirsRecycled.Add(n) }
func (m *SyncMetrics) AddBytesWritten(n int64)   { m.BytesWritten.Add(n) }
func (m *SyncMetrics) AddFailures(n int64)       { m.Failures.Add(n) }

func (m *SyncMetrics) StartProgress(msg string, interval time.Duration) {
	m.startTime = time.Now()
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *SyncMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary prints the counters with a custom message.
// This can be called by a background ticker or at the end of the run.
func (m *SyncMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	plog.Info(msg,
		"entries_scanned", m.EntriesScanned.Load(),
		"bytes_hashed", util.ByteCountIEC(m.BytesHashed.Load()),
		"bytes_written", util.ByteCountIEC(m.BytesWritten.Load()),
		"files_copied", m.FilesCopied.Load(),
		"files_moved", m.FilesMoved.Load(),
		"files_recycled", m.FilesRecycled.Load(),
		"files_uptodate", m.FilesUpToDate.Load(),
		"files_excluded", m.FilesExcluded.Load(),
		"dirs_created", m.DirsCreated.Load(),
		"dirs_recycled", m.DirsRecycled.Load(),
		"dirs_excluded", m.DirsExcluded.Load(),
		"failures", m.Failures.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
// It can be used to disable metrics collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddEntriesScanned(n int64)                        {}
func (m *NoopMetrics) AddFilesExcluded(n int64)                         {}
func (m *NoopMetrics) AddDirsExcluded(n int64)                          {}
func (m *NoopMetrics) AddBytesHashed(n int64)                           {}
func (m *NoopMetrics) AddFilesCopied(n int64)                           {}
func (m *NoopMetrics) AddFilesMoved(n int64)                            {}
func (m *NoopMetrics) AddFilesRecycled(n int64)                         {}
func (m *NoopMetrics) AddFilesUpToDate(n int64)                         {}
func (m *NoopMetrics) AddDirsCreated(n int64)                           {}
func (m *NoopMetrics) AddDirsRecycled(n int64)                          {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) AddFailures(n int64)                              {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// OrNoop returns m, or a NoopMetrics when m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return &NoopMetrics{}
	}
	return m
}

// Statically assert that our types implement the interface.
var _ Metrics = (*SyncMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
