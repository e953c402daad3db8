package parse

import (
	"regexp"
	"strings"

	"github.com/Sriram-PR/sitemap-gen/pkg/models"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

var (
	placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)
	callPattern        = regexp.MustCompile(`^(\w+)\((.*)\)$`)
)

// Evaluator turns a URL template and a row into a publication URL.
type Evaluator struct {
	funcs *FuncRegistry
}

// NewEvaluator creates an Evaluator over reg. A nil registry means DefaultFuncs().
func NewEvaluator(reg *FuncRegistry) *Evaluator {
	if reg == nil {
		reg = DefaultFuncs()
	}
	return &Evaluator{funcs: reg}
}

// Funcs exposes the registry the evaluator resolves calls against.
func (e *Evaluator) Funcs() *FuncRegistry {
	return e.funcs
}

// Evaluate substitutes every {column} and {column:Func(args)} placeholder of template with values
// from row and returns baseURL + "/" + result. Each distinct placeholder is resolved once and
// substituted values are never rescanned.
// A referenced column absent from row yields a *utils.MissingColumnError.
func (e *Evaluator) Evaluate(baseURL, template string, row models.Row) (string, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return baseURL + "/" + template, nil
	}

	resolved := make(map[string]string, len(matches))
	for _, m := range matches {
		expr := template[m[2]:m[3]]
		if _, done := resolved[expr]; done {
			continue
		}
		value, err := e.resolve(expr, row)
		if err != nil {
			return "", err
		}
		resolved[expr] = value
	}

	// Build the output from the original template so inserted values are not scanned again.
	var b strings.Builder
	b.Grow(len(baseURL) + 1 + len(template))
	b.WriteString(baseURL)
	b.WriteByte('/')
	last := 0
	for _, m := range matches {
		b.WriteString(template[last:m[0]])
		b.WriteString(resolved[template[m[2]:m[3]]])
		last = m[1]
	}
	b.WriteString(template[last:])
	return b.String(), nil
}

// resolve computes the replacement text of one placeholder expression.
func (e *Evaluator) resolve(expr string, row models.Row) (string, error) {
	// Only the first segment names a column; any further ':' belongs to the call text.
	column, call, hasCall := strings.Cut(expr, ":")
	column = strings.TrimSpace(column)

	value, ok := row.Text(column)
	if !ok {
		return "", &utils.MissingColumnError{Column: column}
	}
	if !hasCall {
		return value, nil
	}

	m := callPattern.FindStringSubmatch(strings.TrimSpace(call))
	if m == nil {
		return value, nil
	}
	fn, ok := e.funcs.Lookup(m[1])
	if !ok {
		return value, nil
	}
	if value == "" {
		return "", nil
	}
	return fn(value, splitArgs(m[2])), nil
}

// splitArgs splits a call's argument text on commas. Each argument is trimmed of whitespace, then of
// one layer of surrounding quotes. Arguments that are empty before quote removal are dropped, so
// Func('') still passes an empty string.
func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	args := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		args = append(args, unquote(p))
	}
	return args
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return strings.Trim(s, `'"`)
}
