package filter

import "strings"

// Rule pairs a pattern with the effect it has when it matches.
type Rule struct {
	Sign    Sign
	Pattern Pattern
}

func (r Rule) String() string {
	return r.Sign.String() + " " + r.Pattern.String()
}

// Spec is a compiled filter: an ordered, non-empty list of rules.
// A Spec is immutable and can be shared between concurrent walks.
type Spec struct {
	source string
	rules  []Rule
	opts   Options
}

// String returns the filter string the Spec was compiled from.
func (s *Spec) String() string { return s.source }

// Options returns the match options the Spec was compiled with.
func (s *Spec) Options() Options { return s.opts }

// Rules returns a copy of the ordered rule list.
func (s *Spec) Rules() []Rule {
	rules := make([]Rule, len(s.rules))
	copy(rules, s.rules)
	return rules
}

// Decide applies the rules in order to a single entry. The first matching rule
// decides; an entry no rule matches is excluded.
func (s *Spec) Decide(path string, kind EntryKind) Decision {
	if r, ok := s.FirstMatch(path, kind); ok && r.Sign == Include {
		return Included
	}
	return Excluded
}

// FirstMatch returns the first rule whose pattern matches the entry.
func (s *Spec) FirstMatch(path string, kind EntryKind) (Rule, bool) {
	for _, r := range s.rules {
		if r.Pattern.Matches(path, kind) {
			return r, true
		}
	}
	return Rule{}, false
}

// MustDescend reports whether the walker has to look inside folder.
//
// Rules are scanned in order and the first controlling rule wins. A rule that
// matches the folder itself controls with its own sign. An include rule that
// could still match something below the folder controls with Include. Exclude
// rules only control through a direct match, so "- foo/" stops descent into
// foo even when a later rule could reach inside it.
func (s *Spec) MustDescend(folder string) bool {
	folder = strings.Trim(folder, "/")
	for _, r := range s.rules {
		if r.Pattern.Matches(folder, Folder) {
			return r.Sign == Include
		}
		if r.Sign == Include && r.Pattern.ReachableThrough(folder) {
			return true
		}
	}
	return false
}
