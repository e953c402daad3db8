package parse

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TransformFunc turns a column value into a URL fragment. args are the literal
// arguments of the call with quotes and empty entries already removed.
type TransformFunc func(value string, args []string) string

// FuncRegistry is the closed table of transforms a template may call by name.
// It is populated at startup; lookups are safe for concurrent use.
type FuncRegistry struct {
	mu    sync.RWMutex
	funcs map[string]TransformFunc
}

// NewFuncRegistry returns an empty registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{funcs: make(map[string]TransformFunc)}
}

// DefaultFuncs returns a registry holding every built-in transform.
func DefaultFuncs() *FuncRegistry {
	r := NewFuncRegistry()
	r.Register("NormalizeString", normalizeStringFunc)
	r.Register("ToLower", func(v string, _ []string) string { return strings.ToLower(v) })
	r.Register("ToUpper", func(v string, _ []string) string { return strings.ToUpper(v) })
	r.Register("Trim", trimFunc)
	r.Register("Replace", replaceFunc)
	r.Register("Substring", substringFunc)
	r.Register("StripDiacritics", func(v string, _ []string) string { return StripDiacritics(v) })
	r.Register("TitleCase", func(v string, _ []string) string { return cases.Title(language.Und).String(v) })
	return r
}

// Register adds or replaces the transform called name.
func (r *FuncRegistry) Register(name string, fn TransformFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the transform called name. Names are case-sensitive.
func (r *FuncRegistry) Lookup(name string) (TransformFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names lists registered transforms in sorted order.
func (r *FuncRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- Built-in transforms ---

// NormalizeString produces a slug: the separators - / | become spaces, the result is trimmed,
// everything except Arabic letters (U+0621-U+064A), Arabic-Indic digits (U+0660-U+0669),
// ASCII letters, ASCII digits and spaces is dropped, and each run of spaces is replaced with spaceReplacement.
func NormalizeString(s, spaceReplacement string) string {
	if s == "" {
		return ""
	}

	separated := strings.Map(func(r rune) rune {
		switch r {
		case '-', '/', '|':
			return ' '
		}
		return r
	}, s)

	kept := strings.Map(func(r rune) rune {
		if isSlugRune(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(separated))

	var b strings.Builder
	b.Grow(len(kept))
	inSpace := false
	for _, r := range kept {
		if r == ' ' {
			if !inSpace {
				b.WriteString(spaceReplacement)
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func isSlugRune(r rune) bool {
	switch {
	case r == ' ':
		return true
	case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r >= 0x0621 && r <= 0x064A: // Arabic letters
		return true
	case r >= 0x0660 && r <= 0x0669: // Arabic-Indic digits
		return true
	}
	return false
}

// StripDiacritics removes combining marks, so "Café" becomes "Cafe".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func normalizeStringFunc(v string, args []string) string {
	replacement := "-"
	if len(args) > 0 {
		replacement = args[0]
	}
	return NormalizeString(v, replacement)
}

func trimFunc(v string, args []string) string {
	if len(args) == 0 {
		return strings.TrimSpace(v)
	}
	return strings.Trim(v, strings.Join(args, ""))
}

func replaceFunc(v string, args []string) string {
	if len(args) == 0 {
		return v
	}
	replacement := ""
	if len(args) > 1 {
		replacement = args[1]
	}
	return strings.ReplaceAll(v, args[0], replacement)
}

// substringFunc takes a rune offset and an optional length, both clamped to the value.
func substringFunc(v string, args []string) string {
	if len(args) == 0 {
		return v
	}
	rs := []rune(v)
	start, err := strconv.Atoi(args[0])
	if err != nil {
		return v
	}
	start = min(max(start, 0), len(rs))
	end := len(rs)
	if len(args) > 1 {
		length, err := strconv.Atoi(args[1])
		if err != nil {
			return v
		}
		end = min(start+max(length, 0), len(rs))
	}
	return string(rs[start:end])
}
