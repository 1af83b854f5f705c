package hook

// Plan holds the commands run before and after a sync.
type Plan struct {
	PreSync  []string
	PostSync []string

	DryRun bool
}
