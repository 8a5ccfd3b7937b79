package logger

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// DefaultSensitiveFields are the column names masked when no list is given.
var DefaultSensitiveFields = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey", "api_token",
	"secret", "auth", "authorization",
	"credit_card", "card_number", "cvv", "cvc",
	"ssn", "social_security",
	"private_key", "priv_key",
}

// Mask replaces sensitive values in logged parameters.
const Mask = "***REDACTED***"

var (
	comparisonRegex = regexp.MustCompile(`([\w"` + "`" + `\[\].]+)\s*(?:=|<>|!=|(?i:\s+LIKE))\s*(:\w+)`)
	insertRegex     = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+\S+\s*\(([^)]*)\)\s*VALUES\s*(.*)$`)
	valuesRegex     = regexp.MustCompile(`\(([^()]*)\)`)
)

// Sanitizer masks parameters bound to sensitive columns before a statement is
// logged. Placeholders are attributed to columns through comparisons
// ("password"=:qp0) and INSERT column lists; when a statement mentions a
// sensitive column but none of its placeholders can be attributed, every
// parameter is masked.
type Sanitizer struct {
	columns []*regexp.Regexp
	mention *regexp.Regexp
}

// NewSanitizer creates a sanitizer for the given column names, or for
// DefaultSensitiveFields when fields is empty.
func NewSanitizer(fields []string) *Sanitizer {
	if len(fields) == 0 {
		fields = DefaultSensitiveFields
	}
	s := &Sanitizer{}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(f))
		// A field matches a whole column name or one of its underscore-separated words.
		s.columns = append(s.columns, regexp.MustCompile(`(^|_)`+quoted[i]+`($|_)`))
	}
	s.mention = regexp.MustCompile(`(?i)(` + strings.Join(quoted, "|") + `)`)
	return s
}

// IsSensitive reports whether column holds sensitive values. Quotes and table
// qualifiers are ignored.
func (s *Sanitizer) IsSensitive(column string) bool {
	column = strings.ToLower(column)
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		column = column[i+1:]
	}
	column = strings.Trim(column, "\"`[] ")
	for _, re := range s.columns {
		if re.MatchString(column) {
			return true
		}
	}
	return false
}

// MaskParams returns a copy of params in which values bound to sensitive
// columns of sql are replaced by Mask.
func (s *Sanitizer) MaskParams(sql string, params map[string]any) map[string]any {
	if len(params) == 0 || !s.mention.MatchString(sql) {
		return params
	}

	sensitive := map[string]bool{}
	attributed := false
	for _, m := range comparisonRegex.FindAllStringSubmatch(sql, -1) {
		attributed = true
		if s.IsSensitive(m[1]) {
			sensitive[m[2]] = true
		}
	}
	if m := insertRegex.FindStringSubmatch(sql); m != nil {
		columns := strings.Split(m[1], ",")
		for _, group := range valuesRegex.FindAllStringSubmatch(m[2], -1) {
			for i, v := range strings.Split(group[1], ",") {
				v = strings.TrimSpace(v)
				if i >= len(columns) || !strings.HasPrefix(v, ":") {
					continue
				}
				attributed = true
				if s.IsSensitive(columns[i]) {
					sensitive[v] = true
				}
			}
		}
	}

	masked := make(map[string]any, len(params))
	for name, v := range params {
		if !attributed || sensitive[name] {
			masked[name] = Mask
		} else {
			masked[name] = v
		}
	}
	return masked
}

// FormatParams renders params sorted by name, truncating long values.
func (s *Sanitizer) FormatParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + formatValue(params[name])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	const maxLen = 100
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}
