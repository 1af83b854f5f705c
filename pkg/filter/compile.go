package filter

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
)

// MalformedFilterError is returned by Compile when a filter string cannot be parsed.
// It is always fatal: no traversal starts with a filter that failed to compile.
type MalformedFilterError struct {
	Filter string // The complete filter string.
	Token  string // The offending token, if any.
	Reason string
}

func (e *MalformedFilterError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("malformed filter %q: %s", e.Filter, e.Reason)
	}
	return fmt.Sprintf("malformed filter %q: %s (at %q)", e.Filter, e.Reason, e.Token)
}

// token is a whitespace separated unit of a filter string.
type token struct {
	text   string
	quoted bool // A quoted "+" or "-" is a pattern, never an indicator.
}

// tokenize splits a filter string on whitespace outside of quoted substrings.
// Single and double quotes group characters (including spaces) into one token
// and are removed from the result.
func tokenize(s string) ([]token, error) {
	var tokens []token
	var current strings.Builder
	var quoteChar rune
	var inToken, quoted bool

	flush := func() {
		if inToken {
			tokens = append(tokens, token{text: current.String(), quoted: quoted})
		}
		current.Reset()
		inToken, quoted = false, false
	}

	for _, r := range s {
		switch {
		case quoteChar != 0:
			if r == quoteChar {
				quoteChar = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quoteChar = r
			inToken, quoted = true, true
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if quoteChar != 0 {
		return nil, fmt.Errorf("unbalanced %c quote", quoteChar)
	}
	flush()
	return tokens, nil
}

// Compile parses a filter string into an ordered Spec.
// An empty or blank filter string compiles to DefaultSpec.
func Compile(filterString string, opts Options) (*Spec, error) {
	if strings.TrimSpace(filterString) == "" {
		filterString = DefaultSpec
	}

	malformed := func(tok, reason string) error {
		return &MalformedFilterError{Filter: filterString, Token: tok, Reason: reason}
	}

	tokens, err := tokenize(filterString)
	if err != nil {
		return nil, malformed("", err.Error())
	}

	var rules []Rule
	var sign Sign
	var indicator string // The last indicator that has not yet received a pattern.
	haveSign := false

	for _, tok := range tokens {
		if !tok.quoted && (tok.text == "+" || tok.text == "-") {
			if indicator != "" {
				return nil, malformed(indicator, "indicator is not followed by a pattern")
			}
			sign = Include
			if tok.text == "-" {
				sign = Exclude
			}
			haveSign = true
			indicator = tok.text
			continue
		}
		if !haveSign {
			return nil, malformed(tok.text, "pattern is not preceded by '+' or '-'")
		}
		indicator = ""

		pattern, ok, err := compilePattern(tok.text, opts)
		if err != nil {
			return nil, malformed(tok.text, err.Error())
		}
		if !ok {
			continue // "./" and friends select nothing.
		}
		rules = append(rules, Rule{Sign: sign, Pattern: pattern})
	}
	if indicator != "" {
		return nil, malformed(indicator, "indicator is not followed by a pattern")
	}
	if len(rules) == 0 {
		return nil, malformed("", "filter contains no patterns")
	}
	return &Spec{source: filterString, rules: rules, opts: opts}, nil
}

// MustCompile is like Compile but panics on error. It is meant for constant filters.
func MustCompile(filterString string, opts Options) *Spec {
	s, err := Compile(filterString, opts)
	if err != nil {
		panic(err)
	}
	return s
}

// compilePattern turns a single pattern token into a Pattern.
// It returns ok=false for patterns that are empty once normalized.
func compilePattern(raw string, opts Options) (Pattern, bool, error) {
	p := raw
	if runtime.GOOS == "windows" {
		p = strings.ReplaceAll(p, `\`, "/")
	}
	// A leading "./" only anchors the pattern to the root, which every pattern already is.
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "" {
		return Pattern{}, false, nil
	}
	if strings.HasPrefix(p, "/") || filepath.VolumeName(p) != "" {
		return Pattern{}, false, fmt.Errorf("absolute paths are not supported")
	}

	kind := FileOnly
	switch {
	case p == "**":
		kind = Both
	case strings.HasSuffix(p, "/"):
		kind = FolderOnly
		p = strings.TrimSuffix(p, "/")
	}

	parts := strings.Split(p, "/")
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "":
			return Pattern{}, false, fmt.Errorf("empty path segment")
		case "..":
			return Pattern{}, false, fmt.Errorf("parent directories ('..') are not supported")
		case ".":
			return Pattern{}, false, fmt.Errorf("'.' segments are only supported as a leading './'")
		}
		seg, err := compileSegment(part, opts)
		if err != nil {
			return Pattern{}, false, err
		}
		segments = append(segments, seg)
	}

	return Pattern{raw: raw, segments: segments, kind: kind, opts: opts}, true, nil
}

func compileSegment(part string, opts Options) (segment, error) {
	if part == "**" {
		return segment{kind: recursiveSegment, text: part}, nil
	}
	text := part
	if opts.FoldCase {
		text = strings.ToLower(text)
	}
	if !strings.ContainsAny(part, `*?[]{}\`) {
		return segment{kind: literalSegment, text: text}, nil
	}
	if !doublestar.ValidatePattern(text) {
		return segment{}, fmt.Errorf("invalid glob segment %q", part)
	}
	return segment{kind: wildcardSegment, text: text}, nil
}

// Prepend returns filterString with one rule per pattern placed in front of it,
// so the patterns win over every existing rule. Patterns are quoted as needed.
// A blank filterString is replaced by DefaultSpec first.
func Prepend(filterString string, sign Sign, patterns ...string) string {
	if strings.TrimSpace(filterString) == "" {
		filterString = DefaultSpec
	}
	if len(patterns) == 0 {
		return filterString
	}
	var b strings.Builder
	for _, p := range patterns {
		b.WriteString(sign.String())
		b.WriteByte(' ')
		b.WriteString(quotePattern(p))
		b.WriteByte(' ')
	}
	b.WriteString(filterString)
	return b.String()
}

func quotePattern(p string) string {
	if !strings.ContainsFunc(p, func(r rune) bool { return unicode.IsSpace(r) || r == '"' || r == '\'' }) && p != "+" && p != "-" {
		return p
	}
	if strings.ContainsRune(p, '"') {
		return "'" + p + "'"
	}
	return `"` + p + `"`
}
