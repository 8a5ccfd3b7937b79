// Package schema discovers table metadata, caches it per connection identity,
// and converts values between their database and Go representations.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/coregx/dbal/internal/dialects"
)

// Logical kinds a column value is converted to by GoTypecast.
const (
	KindInteger  = "integer"
	KindString   = "string"
	KindBoolean  = "boolean"
	KindDouble   = "double"
	KindResource = "resource"
	KindArray    = "array"
	KindNull     = "null"
)

// TypeCategory groups abstract column types.
type TypeCategory string

// Type categories.
const (
	CategoryPK      TypeCategory = "pk"
	CategoryString  TypeCategory = "string"
	CategoryNumeric TypeCategory = "numeric"
	CategoryTime    TypeCategory = "time"
	CategoryOther   TypeCategory = "other"
)

// TypeCategories maps abstract column types to their category. Each Schema owns
// its own map; there is no process-wide registry to mutate.
type TypeCategories map[string]TypeCategory

// DefaultTypeCategories returns the standard categorization of abstract types.
func DefaultTypeCategories() TypeCategories {
	return TypeCategories{
		dialects.TypePK:        CategoryPK,
		dialects.TypeUPK:       CategoryPK,
		dialects.TypeBigPK:     CategoryPK,
		dialects.TypeUBigPK:    CategoryPK,
		dialects.TypeChar:      CategoryString,
		dialects.TypeString:    CategoryString,
		dialects.TypeText:      CategoryString,
		dialects.TypeTinyInt:   CategoryNumeric,
		dialects.TypeSmallInt:  CategoryNumeric,
		dialects.TypeInteger:   CategoryNumeric,
		dialects.TypeBigInt:    CategoryNumeric,
		dialects.TypeFloat:     CategoryNumeric,
		dialects.TypeDouble:    CategoryNumeric,
		dialects.TypeDecimal:   CategoryNumeric,
		dialects.TypeDateTime:  CategoryTime,
		dialects.TypeTimestamp: CategoryTime,
		dialects.TypeTime:      CategoryTime,
		dialects.TypeDate:      CategoryTime,
		dialects.TypeBinary:    CategoryOther,
		dialects.TypeBoolean:   CategoryNumeric,
		dialects.TypeMoney:     CategoryNumeric,
	}
}

// Category returns the category of an abstract type, or "" when unknown.
func (tc TypeCategories) Category(abstractType string) TypeCategory {
	return tc[abstractType]
}

// ColumnSchema describes a table column.
type ColumnSchema struct {
	Name string `msgpack:"name"`
	// Type is the abstract type (string, integer, decimal, ...).
	Type string `msgpack:"type"`
	// DBType is the physical type as reported by the database.
	DBType string `msgpack:"db_type"`
	// GoType is the logical kind values are converted to (see Kind* constants).
	GoType        string   `msgpack:"go_type"`
	AllowNull     bool     `msgpack:"allow_null"`
	IsPrimaryKey  bool     `msgpack:"pk"`
	AutoIncrement bool     `msgpack:"auto_increment"`
	IsUnique      bool     `msgpack:"unique"`
	Unsigned      bool     `msgpack:"unsigned"`
	Size          int      `msgpack:"size"`
	Precision     int      `msgpack:"precision"`
	Scale         int      `msgpack:"scale"`
	DefaultValue  any      `msgpack:"default"`
	EnumValues    []string `msgpack:"enum"`
	Comment       string   `msgpack:"comment"`

	categories TypeCategories
}

// sqlExpression matches values that are rendered into SQL rather than bound.
type sqlExpression interface {
	SQLExpression()
}

// textTypes keep an empty string as is; for other types "" means NULL.
var textTypes = map[string]bool{
	dialects.TypeText:   true,
	dialects.TypeString: true,
	dialects.TypeBinary: true,
	dialects.TypeChar:   true,
}

// GoTypecast converts a value read from the database into the column's
// logical kind.
func (c *ColumnSchema) GoTypecast(value any) any {
	if c.Type == dialects.TypeJSON {
		switch v := value.(type) {
		case string:
			return decodeJSON([]byte(v), value)
		case []byte:
			return decodeJSON(v, value)
		}
	}
	return c.typecast(value)
}

// DBTypecast converts a Go value into the representation bound for this column.
func (c *ColumnSchema) DBTypecast(value any) any {
	if c.Type == dialects.TypeJSON && value != nil {
		switch value.(type) {
		case string, []byte, sqlExpression:
		default:
			if b, err := json.Marshal(value); err == nil {
				return string(b)
			}
		}
	}
	return c.typecast(value)
}

func decodeJSON(data []byte, fallback any) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fallback
	}
	return v
}

func (c *ColumnSchema) typecast(value any) any {
	if b, ok := value.([]byte); ok && c.GoType != KindResource {
		value = string(b)
	}
	if s, ok := value.(string); ok && s == "" && !textTypes[c.Type] {
		return nil
	}
	if value == nil || c.hasKind(value) {
		return value
	}
	if _, ok := value.(sqlExpression); ok {
		return value
	}

	switch c.GoType {
	case KindString:
		return c.castString(value)
	case KindInteger:
		return castInt(value)
	case KindBoolean:
		return castBool(value)
	case KindDouble:
		return castFloat(value)
	}
	return value
}

// hasKind reports whether value already has the Go type of the column's kind.
// Named types are deliberately not matched, so enum-like values are unwrapped.
func (c *ColumnSchema) hasKind(value any) bool {
	switch c.GoType {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindInteger:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
	case KindBoolean:
		_, ok := value.(bool)
		return ok
	case KindDouble:
		switch value.(type) {
		case float64, float32:
			return true
		}
	}
	return false
}

func (c *ColumnSchema) isNumericCategory() bool {
	return c.categories.Category(c.Type) == CategoryNumeric
}

func (c *ColumnSchema) castString(value any) any {
	if _, ok := value.(time.Time); ok {
		// Drivers bind time.Time natively.
		return value
	}
	v, ok := scalar(value)
	if !ok {
		return fmt.Sprint(value)
	}
	switch x := v.(type) {
	case float64:
		if reflect.TypeOf(value).Kind() == reflect.Float32 {
			return strconv.FormatFloat(x, 'f', -1, 32)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		if c.isNumericCategory() {
			return x
		}
		return strconv.FormatInt(x, 10)
	case uint64:
		if c.isNumericCategory() {
			return x
		}
		return strconv.FormatUint(x, 10)
	case string:
		return x
	}
	return fmt.Sprint(value)
}

// scalar reduces sized and named scalar types (type Status int) to int64,
// uint64, float64, string or bool.
func scalar(value any) (any, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	}
	return nil, false
}

var numericPrefix = regexp.MustCompile(`^\s*[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

func castInt(value any) any {
	v, ok := scalar(value)
	if !ok {
		v = fmt.Sprint(value)
	}
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int64:
		return x
	case uint64:
		if x > math.MaxInt64 {
			return x
		}
		return int64(x)
	case float64:
		return floatToInt(x)
	case string:
		return parseIntPrefix(x)
	}
	return int64(0)
}

func floatToInt(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

func parseIntPrefix(s string) int64 {
	m := strings.TrimSpace(numericPrefix.FindString(s))
	if m == "" {
		return 0
	}
	if strings.ContainsAny(m, ".eE") {
		f, _ := strconv.ParseFloat(m, 64)
		return floatToInt(f)
	}
	// ParseInt returns the clamped value on overflow.
	n, _ := strconv.ParseInt(m, 10, 64)
	return n
}

func castFloat(value any) any {
	v, ok := scalar(value)
	if !ok {
		v = fmt.Sprint(value)
	}
	switch x := v.(type) {
	case bool:
		if x {
			return 1.0
		}
		return 0.0
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float64:
		return x
	case string:
		m := strings.TrimSpace(numericPrefix.FindString(x))
		if m == "" {
			return 0.0
		}
		f, _ := strconv.ParseFloat(m, 64)
		return f
	}
	return 0.0
}

func castBool(value any) any {
	v, ok := scalar(value)
	if !ok {
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array:
			return rv.Len() > 0
		}
		return true
	}
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != "" && x != "0" && x != "\x00" && !strings.EqualFold(x, "false")
	}
	return true
}
