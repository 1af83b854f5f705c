package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-sync/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string
	LogFile  *string
	DryRun   *bool
	Metrics  *bool

	// Shared: Sync / Init
	Source          *string
	Target          *string
	Filter          *string
	Exclude         *string
	IgnoreHidden    *bool
	CaseSensitivity *string
	Trash           *string

	Rename          *bool
	RenameThreshold *int64
	MetadataOnly    *bool

	FollowSymlinks *bool
	RetryCount     *int
	RetryWait      *int
	ModTimeWindow  *int

	SyncWorkers  *int
	HashWorkers  *int
	BufferSizeKB *int

	PreSyncHooks  *string
	PostSyncHooks *string

	// Sync specific
	Report *string

	// Init specific
	Force   *bool
	Default *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.LogFile = fs.String("log", "", "Also write every log record to this file. 'auto' uses the user state directory.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
	f.Metrics = fs.Bool("metrics", false, "Enable detailed performance and file-counting metrics.")
}

// registerSharedFlags registers the flags that map to config file settings.
func registerSharedFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Source = fs.String("source", "", "Source directory to mirror from. (Required)")
	f.Target = fs.String("target", "", "Destination directory to mirror into. (Required)")

	f.Filter = fs.String("filter", "", `Ordered filter rules, e.g. "- **/*.tmp + **/*/ + **/*". First match wins.`)
	f.Exclude = fs.String("exclude", "", "Comma-separated list of filter patterns to exclude before all other rules.")
	f.IgnoreHidden = fs.Bool("ignore-hidden", false, "Wildcards do not match names starting with a dot.")
	f.CaseSensitivity = fs.String("case-sensitivity", "auto", "Pattern and path comparison: 'auto', 'sensitive' or 'insensitive'.")
	f.Trash = fs.String("trash", "", "Folder to recycle destination-only entries into, or 'auto'. Empty keeps them.")

	f.Rename = fs.Bool("rename", true, "Detect renamed files and move them instead of copying.")
	f.RenameThreshold = fs.Int64("rename-threshold", 0, "Minimum file size in bytes for rename detection.")
	f.MetadataOnly = fs.Bool("metadata-only", false, "Detect renames by size and modification time only, without reading content.")

	f.FollowSymlinks = fs.Bool("follow-symlinks", true, "Follow symbolic links to folders and files.")
	f.RetryCount = fs.Int("retry-count", 0, "Number of retries for failed file copies.")
	f.RetryWait = fs.Int("retry-wait", 0, "Seconds to wait between retries.")
	f.ModTimeWindow = fs.Int("mod-time-window", 1, "Time window in seconds to consider file modification times equal (0=exact).")

	f.SyncWorkers = fs.Int("sync-workers", 0, "Number of worker goroutines for copies, moves and recycles.")
	f.HashWorkers = fs.Int("hash-workers", 0, "Number of worker goroutines for content fingerprints.")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the read buffer in kilobytes for content fingerprints.")

	f.PreSyncHooks = fs.String("pre-sync-hooks", "", "Comma-separated list of commands to run before the sync.")
	f.PostSyncHooks = fs.String("post-sync-hooks", "", "Comma-separated list of commands to run after the sync.")
}

func registerSyncFlags(fs *flag.FlagSet, f *cliFlags) {
	registerSharedFlags(fs, f)
	f.Report = fs.String("report", "", "Write the run report to this file (.json, .json.gz or .json.zst).")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	// Init supports all sync settings (to generate config) plus 'force' and 'default'.
	registerSharedFlags(fs, f)
	f.Force = fs.Bool("force", false, "Bypass confirmation prompts.")
	f.Default = fs.Bool("default", false, "Overwrite existing configuration with defaults.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the action and config map.
func Parse(args []string) (Command, map[string]any, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	f := &cliFlags{}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	switch command {
	case Init:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerInitFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Write a configuration file into the target directory.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return Init, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return Init, flagMap, err

	case Sync:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerSyncFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Mirror the source directory into the target directory.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		if fs.NArg() > 0 {
			return command, nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Version:
		return command, nil, nil

	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]any, error) {
	// Only flags explicitly set by the user override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "log", f.LogFile)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)

	addIfUsed(flagMap, usedFlags, "source", f.Source)
	addIfUsed(flagMap, usedFlags, "target", f.Target)
	addIfUsed(flagMap, usedFlags, "filter", f.Filter)
	addIfUsed(flagMap, usedFlags, "ignore-hidden", f.IgnoreHidden)
	addIfUsed(flagMap, usedFlags, "case-sensitivity", f.CaseSensitivity)
	addIfUsed(flagMap, usedFlags, "trash", f.Trash)

	addIfUsed(flagMap, usedFlags, "rename", f.Rename)
	addIfUsed(flagMap, usedFlags, "rename-threshold", f.RenameThreshold)
	addIfUsed(flagMap, usedFlags, "metadata-only", f.MetadataOnly)

	addIfUsed(flagMap, usedFlags, "follow-symlinks", f.FollowSymlinks)
	addIfUsed(flagMap, usedFlags, "retry-count", f.RetryCount)
	addIfUsed(flagMap, usedFlags, "retry-wait", f.RetryWait)
	addIfUsed(flagMap, usedFlags, "mod-time-window", f.ModTimeWindow)

	addIfUsed(flagMap, usedFlags, "sync-workers", f.SyncWorkers)
	addIfUsed(flagMap, usedFlags, "hash-workers", f.HashWorkers)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)

	addIfUsed(flagMap, usedFlags, "report", f.Report)
	addIfUsed(flagMap, usedFlags, "force", f.Force)
	addIfUsed(flagMap, usedFlags, "default", f.Default)

	addParsedIfUsed(flagMap, usedFlags, "exclude", f.Exclude, ParseExcludeList)
	addParsedIfUsed(flagMap, usedFlags, "pre-sync-hooks", f.PreSyncHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "post-sync-hooks", f.PostSyncHooks, ParseCmdList)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "A filtered, rename-aware one-way folder mirror.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  sync        Mirror a source directory into a target directory\n")
	fmt.Fprintf(fs.Output(), "  init        Write a configuration file into the target directory\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "A filtered, rename-aware one-way folder mirror.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseCmdList parses a comma-separated list of shell commands. Quotes and
// backslash escapes are kept for the shell to interpret.
func ParseCmdList(s string) []string {
	return parseListInternal(s, true, true)
}

// ParseExcludeList parses a comma-separated list of filter patterns.
// Quotes only group items containing spaces or commas and are removed.
// Backslashes are literal for Windows path compatibility.
func ParseExcludeList(s string) []string {
	return parseListInternal(s, false, false)
}

// parseListInternal splits s on commas outside of single or double quotes.
// keepQuotes preserves the quote characters; handleEscapes makes a backslash
// protect the next character (the backslash itself is kept).
func parseListInternal(s string, keepQuotes, handleEscapes bool) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\' && handleEscapes:
			isEscaped = true
			current.WriteRune(r)
		case r == '\'' || r == '"':
			switch quoteChar {
			case 0:
				quoteChar = r
				if keepQuotes {
					current.WriteRune(r)
				}
			case r:
				quoteChar = 0
				if keepQuotes {
					current.WriteRune(r)
				}
			default:
				// The other quote character is literal inside a quoted section.
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
