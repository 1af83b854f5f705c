package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-sync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/flagparse"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// ConfigFileName is the name of the configuration file in the target root.
const ConfigFileName = "pgl-sync.config.json"

// TrashAuto places the trash next to the target as "<target>.pgl-trash".
const TrashAuto = "auto"

type FilterConfig struct {
	// Spec is the ordered rule list, e.g. "- **/*.tmp + **/*/ + **/*".
	// Empty selects the default spec that includes everything.
	Spec string `json:"spec"`
	// Excludes are patterns excluded ahead of every rule in Spec.
	Excludes     []string `json:"excludes,omitempty"`
	IgnoreHidden bool     `json:"ignoreHidden"`
	// CaseSensitivity is 'auto', 'sensitive' or 'insensitive'. 'auto' follows the host file system.
	CaseSensitivity string `json:"caseSensitivity"`
}

type RenameConfig struct {
	Enabled bool `json:"enabled"`
	// ThresholdBytes is the minimum size of a file considered for rename detection.
	ThresholdBytes int64 `json:"thresholdBytes"`
	// MetadataOnly trusts equal size and modification time without comparing content.
	MetadataOnly bool `json:"metadataOnly"`
}

type SyncConfig struct {
	FollowSymlinks       bool `json:"followSymlinks"`
	RetryCount           int  `json:"retryCount"`
	RetryWaitSeconds     int  `json:"retryWaitSeconds"`
	ModTimeWindowSeconds int  `json:"modTimeWindowSeconds" comment:"Time window in seconds to consider file modification times equal. Handles filesystem timestamp precision differences. Default is 1s. 0 means exact match."`
}

// HooksConfig lists shell commands run around a sync. A failing pre-sync
// command aborts the run; post-sync commands always run and only warn.
type HooksConfig struct {
	PreSync  []string `json:"preSync,omitempty"`
	PostSync []string `json:"postSync,omitempty"`
}

type EnginePerformanceConfig struct {
	SyncWorkers  int `json:"syncWorkers"`
	HashWorkers  int `json:"hashWorkers"`
	BufferSizeKB int `json:"bufferSizeKB" comment:"Size of the read buffer in kilobytes for content fingerprints. Default is 256 (256KB)."`
}

type EngineConfig struct {
	Metrics     bool                    `json:"metrics"`
	Performance EnginePerformanceConfig `json:"performance"`
}

type RuntimeConfig struct {
	DryRun bool
	// ReportPath is where the run report is written. Empty skips the report file.
	ReportPath string
	// LogFile receives a copy of every log record. Empty disables it.
	LogFile string
}

type Config struct {
	Version  string        `json:"version"`
	Source   string        `json:"source"`
	Target   string        `json:"-"` // Never added to config file
	Runtime  RuntimeConfig `json:"-"` // Never added to config file
	LogLevel string        `json:"logLevel"`
	// Trash is the folder destination-only entries are recycled into: empty
	// disables recycling, 'auto' uses a sibling of the target.
	Trash  string       `json:"trash"`
	Filter FilterConfig `json:"filter"`
	Rename RenameConfig `json:"rename"`
	Sync   SyncConfig   `json:"sync"`
	Hooks  HooksConfig  `json:"hooks"`
	Engine EngineConfig `json:"engine"`
}

// NewDefault creates and returns a Config struct with sensible default values.
// Nothing is ever recycled unless a trash folder is configured.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		Source:   "",     // Intentionally empty to force user configuration.
		Target:   "",     // Intentionally empty to force user configuration.
		LogLevel: "info", // Default log level.
		Trash:    "",
		Runtime: RuntimeConfig{
			DryRun: false,
		},
		Filter: FilterConfig{
			Spec:            filter.DefaultSpec,
			IgnoreHidden:    false,
			CaseSensitivity: "auto",
		},
		Rename: RenameConfig{
			Enabled:        true,
			ThresholdBytes: 0, // Every file is a rename candidate.
			MetadataOnly:   false,
		},
		Sync: SyncConfig{
			FollowSymlinks:       true,
			RetryCount:           3, // Default retries on failure.
			RetryWaitSeconds:     5, // Default wait time between retries.
			ModTimeWindowSeconds: 1, // Set the default to 1 second
		},
		Engine: EngineConfig{
			Metrics: true,
			Performance: EnginePerformanceConfig{
				SyncWorkers:  4,   // Default to 4. Safe for HDDs (prevents thrashing), decent for SSDs.
				HashWorkers:  4,   // Fingerprinting reads whole files; keep it in line with sync workers.
				BufferSizeKB: 256, // Keep it between 64KB-4MB
			},
		},
	}
}

// Load attempts to load a configuration from the target root. If the file
// doesn't exist, it returns the default config without an error. If the file
// exists but fails to parse, it returns an error and a zero-value config.
func Load(target string) (Config, error) {
	absTargetPath, err := filepath.Abs(target)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for load directory %s: %w", target, err)
	}

	configPath := filepath.Join(absTargetPath, ConfigFileName)

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewDefault()
			cfg.Target = absTargetPath
			return cfg, nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	config.Target = absTargetPath

	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate creates or overwrites the config file in the target root.
func Generate(configToGenerate Config) error {
	if err := os.MkdirAll(configToGenerate.Target, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", configToGenerate.Target, err)
	}
	configPath := filepath.Join(configToGenerate.Target, ConfigFileName)
	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the configuration for logical errors and inconsistencies.
// Paths are expanded and cleaned in place. The filter spec is compiled so a
// malformed filter fails before anything is scanned.
func (c *Config) Validate(checkSource bool) error {
	if checkSource && c.Source == "" {
		return fmt.Errorf("source path cannot be empty")
	}
	if c.Target == "" {
		return fmt.Errorf("target path cannot be empty")
	}

	var err error
	if c.Source != "" {
		c.Source, err = util.ExpandPath(c.Source)
		if err != nil {
			return fmt.Errorf("could not expand source path: %w", err)
		}
		if c.Source, err = filepath.Abs(c.Source); err != nil {
			return fmt.Errorf("could not determine absolute source path: %w", err)
		}

		if checkSource {
			if _, err := os.Stat(c.Source); os.IsNotExist(err) {
				return fmt.Errorf("source path '%s' does not exist", c.Source)
			}
		}
	}

	c.Target, err = util.ExpandPath(c.Target)
	if err != nil {
		return fmt.Errorf("could not expand target path: %w", err)
	}
	if c.Target, err = filepath.Abs(c.Target); err != nil {
		return fmt.Errorf("could not determine absolute target path: %w", err)
	}

	if c.Trash != "" && c.Trash != TrashAuto {
		c.Trash, err = util.ExpandPath(c.Trash)
		if err != nil {
			return fmt.Errorf("could not expand trash path: %w", err)
		}
		if c.Trash, err = filepath.Abs(c.Trash); err != nil {
			return fmt.Errorf("could not determine absolute trash path: %w", err)
		}
	}
	if c.Runtime.ReportPath != "" {
		if c.Runtime.ReportPath, err = filepath.Abs(c.Runtime.ReportPath); err != nil {
			return fmt.Errorf("could not determine absolute report path: %w", err)
		}
	}

	switch c.Filter.CaseSensitivity {
	case "auto", "sensitive", "insensitive":
	default:
		return fmt.Errorf("filter.caseSensitivity must be 'auto', 'sensitive' or 'insensitive', got %q", c.Filter.CaseSensitivity)
	}
	// The spec is compiled on its own first: a leading pattern without an
	// indicator would otherwise inherit the sign of the prepended excludes.
	filterOpts := filter.Options{IgnoreHidden: c.Filter.IgnoreHidden}
	if _, err := filter.Compile(c.Filter.Spec, filterOpts); err != nil {
		return err
	}
	if _, err := filter.Compile(c.FilterSpec(), filterOpts); err != nil {
		return err
	}

	if c.Rename.ThresholdBytes < 0 {
		return fmt.Errorf("rename.thresholdBytes cannot be negative")
	}
	if c.Sync.RetryCount < 0 {
		return fmt.Errorf("sync.retryCount cannot be negative")
	}
	if c.Sync.RetryWaitSeconds < 0 {
		return fmt.Errorf("sync.retryWaitSeconds cannot be negative")
	}
	if c.Sync.ModTimeWindowSeconds < 0 {
		return fmt.Errorf("sync.modTimeWindowSeconds cannot be negative")
	}

	if c.Engine.Performance.SyncWorkers < 1 {
		return fmt.Errorf("engine.performance.syncWorkers must be at least 1")
	}
	if c.Engine.Performance.HashWorkers < 1 {
		return fmt.Errorf("engine.performance.hashWorkers must be at least 1")
	}
	if c.Engine.Performance.BufferSizeKB <= 0 {
		return fmt.Errorf("engine.performance.bufferSizeKB must be greater than 0")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "notice", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel must be 'debug', 'notice', 'info', 'warn' or 'error', got %q", c.LogLevel)
	}
	return nil
}

// TrashPath resolves the configured trash to an absolute folder, or "" when
// recycling is disabled.
func (c *Config) TrashPath() string {
	switch c.Trash {
	case "":
		return ""
	case TrashAuto:
		return c.Target + ".pgl-trash"
	default:
		return c.Trash
	}
}

// FilterSpec returns the filter string with the configured excludes in front.
func (c *Config) FilterSpec() string {
	return filter.Prepend(c.Filter.Spec, filter.Exclude, c.Filter.Excludes...)
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	logArgs := []any{
		"log_level", c.LogLevel,
		"source", c.Source,
		"target", c.Target,
		"dry_run", c.Runtime.DryRun,
		"filter", c.FilterSpec(),
		"ignore_hidden", c.Filter.IgnoreHidden,
		"case_sensitivity", c.Filter.CaseSensitivity,
		"follow_symlinks", c.Sync.FollowSymlinks,
		"mod_time_window", fmt.Sprintf("%ds", c.Sync.ModTimeWindowSeconds),
		"sync_workers", c.Engine.Performance.SyncWorkers,
		"hash_workers", c.Engine.Performance.HashWorkers,
		"buffer_size_kb", c.Engine.Performance.BufferSizeKB,
		"metrics", c.Engine.Metrics,
	}
	if trash := c.TrashPath(); trash != "" {
		logArgs = append(logArgs, "trash", trash)
	} else {
		logArgs = append(logArgs, "trash", "disabled (destination-only entries are kept)")
	}
	if c.Rename.Enabled {
		mode := "content"
		if c.Rename.MetadataOnly {
			mode = "metadata"
		}
		logArgs = append(logArgs, "rename", fmt.Sprintf("enabled (t:%s m:%s)", util.ByteCountIEC(c.Rename.ThresholdBytes), mode))
	}
	if c.Runtime.ReportPath != "" {
		logArgs = append(logArgs, "report", c.Runtime.ReportPath)
	}
	if len(c.Hooks.PreSync) > 0 {
		logArgs = append(logArgs, "pre_sync_hooks", strings.Join(c.Hooks.PreSync, "; "))
	}
	if len(c.Hooks.PostSync) > 0 {
		logArgs = append(logArgs, "post_sync_hooks", strings.Join(c.Hooks.PostSync, "; "))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "target":
			merged.Target = value.(string)
		case "log-level":
			merged.LogLevel = strings.ToLower(value.(string))
		case "metrics":
			merged.Engine.Metrics = value.(bool)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "report":
			switch command {
			case flagparse.Sync:
				merged.Runtime.ReportPath = value.(string)
			default:
			}
		case "log":
			merged.Runtime.LogFile = value.(string)
		case "filter":
			merged.Filter.Spec = value.(string)
		case "exclude":
			merged.Filter.Excludes = value.([]string)
		case "ignore-hidden":
			merged.Filter.IgnoreHidden = value.(bool)
		case "case-sensitivity":
			merged.Filter.CaseSensitivity = value.(string)
		case "trash":
			merged.Trash = value.(string)
		case "rename":
			merged.Rename.Enabled = value.(bool)
		case "rename-threshold":
			merged.Rename.ThresholdBytes = value.(int64)
		case "metadata-only":
			merged.Rename.MetadataOnly = value.(bool)
		case "follow-symlinks":
			merged.Sync.FollowSymlinks = value.(bool)
		case "retry-count":
			merged.Sync.RetryCount = value.(int)
		case "retry-wait":
			merged.Sync.RetryWaitSeconds = value.(int)
		case "mod-time-window":
			merged.Sync.ModTimeWindowSeconds = value.(int)
		case "sync-workers":
			merged.Engine.Performance.SyncWorkers = value.(int)
		case "hash-workers":
			merged.Engine.Performance.HashWorkers = value.(int)
		case "buffer-size-kb":
			merged.Engine.Performance.BufferSizeKB = value.(int)
		case "pre-sync-hooks":
			merged.Hooks.PreSync = value.([]string)
		case "post-sync-hooks":
			merged.Hooks.PostSync = value.([]string)
		case "force", "default":
			// Consumed by the init command itself.
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
