package preflight

// Plan selects the checks Run performs.
type Plan struct {
	SourceAccessible bool
	TargetAccessible bool
	TargetWriteable  bool
	PathNesting      bool
	TrashDevice      bool
	FreeSpace        bool

	// DryRun skips every check that writes to disk.
	DryRun bool
}
