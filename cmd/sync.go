package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/mattn/go-isatty"

	"github.com/paulschiretz/pgl-sync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-sync/pkg/config"
	"github.com/paulschiretz/pgl-sync/pkg/engine"
	"github.com/paulschiretz/pgl-sync/pkg/flagparse"
	"github.com/paulschiretz/pgl-sync/pkg/planner"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
)

// LogFileAuto places the log file in the user's state directory.
const LogFileAuto = "auto"

// progressInterval is how often the progress line is printed on a terminal.
const progressInterval = 5 * time.Second

// RunSync handles the logic for the main sync execution.
func RunSync(ctx context.Context, flagMap map[string]any) error {
	// For sync, the target flag is mandatory.
	targetPath, ok := flagMap["target"].(string)
	if !ok || targetPath == "" {
		return fmt.Errorf("the -target flag is required to run a sync")
	}

	// Load config from the target directory, or use defaults if not found.
	loadedConfig, err := config.Load(targetPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from target: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(flagparse.Sync, loadedConfig, flagMap)

	logFile, err := ResolveLogFile(runConfig.Runtime.LogFile)
	if err != nil {
		return err
	}
	runConfig.Runtime.LogFile = logFile
	if logFile != "" {
		closeLog, err := openLogSink(logFile)
		if err != nil {
			return err
		}
		defer closeLog()
	}

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(true); err != nil {
		return err
	}

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	// Log the Summary
	runConfig.LogSummary()

	// Get the Plan
	syncPlan, err := planner.GenerateSyncPlan(runConfig)
	if err != nil {
		return err
	}
	if syncPlan.Metrics && isatty.IsTerminal(os.Stdout.Fd()) {
		syncPlan.ProgressInterval = progressInterval
	}

	// Execute the plan
	runner := engine.NewRunner(nil)
	startTime := time.Now()
	_, err = runner.ExecuteSync(ctx, syncPlan.Source, syncPlan.Target, syncPlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}

// ResolveLogFile turns the -log value into an absolute path. "auto" resolves to
// pgl-sync/pgl-sync.log below the XDG state directory.
func ResolveLogFile(logFile string) (string, error) {
	switch logFile {
	case "":
		return "", nil
	case LogFileAuto:
		p, err := xdg.StateFile(filepath.Join("pgl-sync", "pgl-sync.log"))
		if err != nil {
			return "", fmt.Errorf("could not resolve log file location: %w", err)
		}
		return p, nil
	default:
		p, err := filepath.Abs(logFile)
		if err != nil {
			return "", fmt.Errorf("could not determine absolute log file path for %s: %w", logFile, err)
		}
		return p, nil
	}
}

// openLogSink appends every log record to path until the returned func is called.
func openLogSink(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	remove := plog.AddFileSink(f)
	plog.Debug("Logging to file", "path", path)
	return func() {
		remove()
		_ = f.Close()
	}, nil
}
