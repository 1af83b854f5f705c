// Package filter compiles ordered include/exclude glob rules and applies them
// to root-relative paths.
//
// A filter string is a sequence of indicators ("+" or "-") each followed by one
// or more patterns:
//
//	+ **/*/ **/*            include every folder and every file (the default)
//	- build/ + **/*/ **/*   skip the top-level build folder, include the rest
//	+ "My Docs/**/*.pdf"    quoted patterns may contain spaces
//
// Patterns are matched segment by segment against forward-slash paths relative
// to the synced root. A pattern ending in "/" applies to folders only, any other
// pattern applies to files only, and the lone pattern "**" applies to both.
// The first rule that matches decides; an entry matched by no rule is excluded.
package filter

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// DefaultSpec searches every folder and includes every file.
const DefaultSpec = "+ **/*/ **/*"

// Sign is the effect of a rule when it matches.
type Sign int

const (
	Include Sign = iota
	Exclude
)

var signToString = map[Sign]string{Include: "+", Exclude: "-"}

func (s Sign) String() string {
	if str, ok := signToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_sign(%d)", s)
}

// Kind restricts which entry kinds a pattern can match.
type Kind int

const (
	FileOnly Kind = iota
	FolderOnly
	Both
)

var kindToString = map[Kind]string{FileOnly: "file", FolderOnly: "folder", Both: "both"}

func (k Kind) String() string {
	if str, ok := kindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("unknown_kind(%d)", k)
}

// admits reports whether an entry of kind ek can be matched by a pattern of kind k.
func (k Kind) admits(ek EntryKind) bool {
	switch k {
	case Both:
		return true
	case FolderOnly:
		return ek == Folder
	default:
		return ek == File
	}
}

// EntryKind is the kind of a file system entry as seen by the filter.
type EntryKind int

const (
	File EntryKind = iota
	Folder
)

var entryKindToString = map[EntryKind]string{File: "file", Folder: "folder"}
var stringToEntryKind map[string]EntryKind

func init() {
	stringToEntryKind = util.InvertMap(entryKindToString)
}

func (k EntryKind) String() string {
	if str, ok := entryKindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("unknown_entry_kind(%d)", k)
}

// MarshalJSON implements the json.Marshaler interface for EntryKind.
func (k EntryKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for EntryKind.
func (k *EntryKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("EntryKind should be a string, got %s", data)
	}
	kind, ok := stringToEntryKind[s]
	if !ok {
		return fmt.Errorf("invalid entry kind: %q. Must be 'file' or 'folder'", s)
	}
	*k = kind
	return nil
}

// Decision is the outcome of applying a Spec to a single entry.
type Decision int

const (
	Excluded Decision = iota
	Included
)

func (d Decision) String() string {
	if d == Included {
		return "include"
	}
	return "exclude"
}

// Options tune how patterns match path segments.
type Options struct {
	// IgnoreHidden stops wildcards from matching names that start with a dot,
	// unless the pattern segment itself starts with a dot.
	IgnoreHidden bool
	// FoldCase makes all comparisons case-insensitive.
	FoldCase bool
}

// DefaultOptions follows the case sensitivity of the host file system.
func DefaultOptions() Options {
	return Options{FoldCase: util.IsHostCaseInsensitiveFS()}
}
