package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coregx/dbal/internal/dberr"
	"github.com/coregx/dbal/internal/querybuilder"
	"github.com/coregx/dbal/internal/quoter"
)

// rewriteNamed copies query replacing every :name placeholder with the result
// of replace. Quoted literals and identifiers are copied verbatim and "::" is
// kept as a cast operator.
func rewriteNamed(query string, backslashEscapes bool, replace func(name string) (string, error)) (string, error) {
	if !strings.Contains(query, ":") {
		return query, nil
	}

	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); {
		ch := query[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end := skipQuoted(query, i, backslashEscapes && ch == '\'')
			b.WriteString(query[i:end])
			i = end
			continue
		case ch == ':' && i+1 < len(query) && query[i+1] == ':':
			b.WriteString("::")
			i += 2
			continue
		case ch == ':' && i+1 < len(query) && isNameStart(query[i+1]):
			j := i + 2
			for j < len(query) && isNameByte(query[j]) {
				j++
			}
			s, err := replace(query[i:j])
			if err != nil {
				return "", err
			}
			b.WriteString(s)
			i = j
			continue
		}
		b.WriteByte(ch)
		i++
	}
	return b.String(), nil
}

// skipQuoted returns the index just past the quoted section starting at start.
// Doubled quote characters are part of the section.
func skipQuoted(s string, start int, backslash bool) int {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		switch {
		case backslash && s[i] == '\\':
			i++
		case s[i] == q:
			if i+1 < len(s) && s[i+1] == q {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}

func isNameStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isNameStart(c) || ('0' <= c && c <= '9')
}

// bindNamed converts named placeholders into the dialect's positional form and
// returns the arguments in placeholder order. A name used twice is bound twice.
func bindNamed(query string, params querybuilder.Params, backslashEscapes bool, placeholder func(int) string) (string, []any, error) {
	if len(params) == 0 {
		return query, nil, nil
	}
	var args []any
	sql, err := rewriteNamed(query, backslashEscapes, func(name string) (string, error) {
		v, ok := params[name]
		if !ok {
			return "", dberr.Argument("parameter %s is not bound", name)
		}
		args = append(args, v)
		return placeholder(len(args)), nil
	})
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

// rawSQL inlines params as literals. Unknown placeholders are left as is.
func rawSQL(query string, params querybuilder.Params, q *quoter.Quoter, backslashEscapes bool) string {
	if len(params) == 0 {
		return query
	}
	sql, _ := rewriteNamed(query, backslashEscapes, func(name string) (string, error) {
		v, ok := params[name]
		if !ok {
			return name, nil
		}
		return literal(q, v), nil
	})
	return sql
}

func literal(q *quoter.Quoter, v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return q.QuoteValue(v)
	case []byte:
		return q.QuoteValue(string(v))
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return q.QuoteValue(v.Format("2006-01-02 15:04:05.999999999"))
	}
	return q.QuoteValue(fmt.Sprint(v))
}
