package planner

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// CaseMode selects how patterns and paths are compared.
type CaseMode int

const (
	CaseAuto CaseMode = iota
	CaseSensitive
	CaseInsensitive
)

var caseModeToString = map[CaseMode]string{
	CaseAuto:        "auto",
	CaseSensitive:   "sensitive",
	CaseInsensitive: "insensitive",
}
var stringToCaseMode map[string]CaseMode

func init() {
	stringToCaseMode = util.InvertMap(caseModeToString)
}

func (m CaseMode) String() string {
	if str, ok := caseModeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_case_mode(%d)", m)
}

// ParseCaseMode parses a string and returns the corresponding CaseMode.
func ParseCaseMode(s string) (CaseMode, error) {
	if mode, ok := stringToCaseMode[s]; ok {
		return mode, nil
	}
	return 0, fmt.Errorf("invalid case sensitivity: %q. Must be 'auto', 'sensitive' or 'insensitive'", s)
}

// FoldCase reports whether comparisons ignore case. CaseAuto follows the host
// file system.
func (m CaseMode) FoldCase() bool {
	switch m {
	case CaseSensitive:
		return false
	case CaseInsensitive:
		return true
	default:
		return util.IsHostCaseInsensitiveFS()
	}
}

// MarshalJSON implements the json.Marshaler interface for CaseMode.
func (m CaseMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for CaseMode.
func (m *CaseMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("CaseMode should be a string, got %s", data)
	}
	mode, err := ParseCaseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
