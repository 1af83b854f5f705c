package actionplan

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-sync/pkg/filter"
	"github.com/paulschiretz/pgl-sync/pkg/pathscan"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// Kind is the type of a planned action.
type Kind int

const (
	MakeDir Kind = iota
	Move
	Copy
	Recycle
	Skip
)

var kindToString = map[Kind]string{
	MakeDir: "mkdir",
	Move:    "move",
	Copy:    "copy",
	Recycle: "recycle",
	Skip:    "skip",
}
var stringToKind map[string]Kind

func init() {
	stringToKind = util.InvertMap(kindToString)
}

// Kinds lists all action kinds in execution order.
var Kinds = []Kind{MakeDir, Move, Copy, Recycle, Skip}

func (k Kind) String() string {
	if str, ok := kindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("unknown_action(%d)", k)
}

// MarshalJSON implements the json.Marshaler interface for Kind.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("action kind should be a string, got %s", data)
	}
	kind, ok := stringToKind[s]
	if !ok {
		return fmt.Errorf("invalid action kind: %q", s)
	}
	*k = kind
	return nil
}

// Skip reasons.
const (
	ReasonUpToDate              = "up-to-date"
	ReasonWouldDeleteSuppressed = "would-delete-suppressed"
	ReasonHoldsRenamedEntry     = "holds-renamed-entry"
)

// Action is a single planned step. All paths are relative to their root and
// use forward slashes.
type Action struct {
	Kind Kind `json:"kind"`
	// Path is the destination path the action targets. For Recycle and Skip of
	// destination-only entries it is the entry being recycled or kept.
	Path string `json:"path"`
	// Origin is the source path of a Copy or the old destination path of a Move.
	Origin string `json:"origin,omitempty"`
	// TrashPath is the path below the trash root a Recycle moves the entry to.
	TrashPath string           `json:"trash_path,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	EntryKind filter.EntryKind `json:"entry_kind"`
	Size      int64            `json:"size"`
	// Replaces is the size of the destination file a Copy overwrites.
	Replaces int64 `json:"replaces,omitempty"`

	// Entry is the snapshot the action was planned from: the source entry for
	// MakeDir, Copy and Move, the destination entry otherwise. It may be nil for
	// MakeDir of a folder the filter did not include.
	Entry *pathscan.Entry `json:"-"`
}

func (a Action) String() string {
	switch a.Kind {
	case Copy:
		return fmt.Sprintf("copy %s", a.Path)
	case Move:
		return fmt.Sprintf("move %s -> %s", a.Origin, a.Path)
	case Recycle:
		return fmt.Sprintf("recycle %s -> %s", a.Path, a.TrashPath)
	case Skip:
		return fmt.Sprintf("skip %s (%s)", a.Path, a.Reason)
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Path)
	}
}
