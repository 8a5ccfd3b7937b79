package dberr

import (
	"errors"
	"sort"
	"strings"
)

// Category classifies an execution failure.
type Category string

const (
	// CategoryGeneric is the category of unclassified execution errors.
	CategoryGeneric Category = "generic"
	// CategoryIntegrity marks integrity constraint violations (SQLSTATE class 23).
	CategoryIntegrity Category = "integrity"
)

// DefaultCategoryMap maps message substrings to categories.
func DefaultCategoryMap() map[string]Category {
	return map[string]Category{
		"SQLSTATE[23": CategoryIntegrity,
	}
}

// ExecutionError wraps a driver failure together with the statement that caused it.
type ExecutionError struct {
	// Message is the driver message, prefixed with SQLSTATE[xxxxx] when known.
	Message string
	// SQLState is the five-character state extracted from the driver error.
	SQLState string
	// RawSQL is the statement with parameters inlined, for diagnostics only.
	RawSQL   string
	Category Category
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.RawSQL == "" {
		return e.Message
	}
	return e.Message + "\nThe SQL being executed was: " + e.RawSQL
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is matches ErrExecution, and ErrIntegrity for integrity violations.
func (e *ExecutionError) Is(target error) bool {
	switch target {
	case ErrExecution:
		return true
	case ErrIntegrity:
		return e.Category == CategoryIntegrity
	}
	return false
}

// IsIntegrity reports whether err is an integrity constraint violation.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// Classifier converts driver errors into *ExecutionError values, assigning a
// category from the first substring of the message found in its map.
type Classifier struct {
	keys       []string
	categories map[string]Category
}

// NewClassifier creates a classifier. A nil map selects DefaultCategoryMap.
func NewClassifier(categories map[string]Category) *Classifier {
	if categories == nil {
		categories = DefaultCategoryMap()
	}
	keys := make([]string, 0, len(categories))
	for k := range categories {
		keys = append(keys, k)
	}
	// Longest substring first so that specific entries win over prefixes.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return &Classifier{keys: keys, categories: categories}
}

// Convert wraps err into an *ExecutionError. Errors that already are execution
// errors, and nil, are returned unchanged.
func (c *Classifier) Convert(err error, sqlState, rawSQL string) error {
	if err == nil {
		return nil
	}
	var existing *ExecutionError
	if errors.As(err, &existing) {
		return err
	}

	msg := err.Error()
	if sqlState != "" && !strings.HasPrefix(msg, "SQLSTATE[") {
		msg = "SQLSTATE[" + sqlState + "]: " + msg
	}

	category := CategoryGeneric
	for _, k := range c.keys {
		if strings.Contains(msg, k) {
			category = c.categories[k]
			break
		}
	}

	return &ExecutionError{
		Message:  msg,
		SQLState: sqlState,
		RawSQL:   rawSQL,
		Category: category,
		Err:      err,
	}
}
