package core

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/coregx/dbal/internal/dberr"
)

// structFields maps lower-cased column names to field index paths. Fields use
// the db tag as column name; db:"-" skips a field and embedded structs are
// flattened.
type structFields map[string][]int

var fieldCache sync.Map // reflect.Type -> structFields

func fieldsOf(typ reflect.Type) structFields {
	if f, ok := fieldCache.Load(typ); ok {
		return f.(structFields)
	}
	fields := structFields{}
	collectFields(typ, nil, fields)
	f, _ := fieldCache.LoadOrStore(typ, fields)
	return f.(structFields)
}

func collectFields(typ reflect.Type, index []int, fields structFields) {
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		path := append(append([]int{}, index...), i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectFields(field.Type, path, fields)
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("db"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		name = strings.ToLower(name)
		if _, dup := fields[name]; !dup {
			fields[name] = path
		}
	}
}

// scanStruct scans the current row into the struct v. Columns without a
// matching field are discarded.
func scanStruct(rows *sql.Rows, columns []string, v reflect.Value) error {
	fields := fieldsOf(v.Type())
	dests := make([]any, len(columns))
	for i, col := range columns {
		if path, ok := fields[strings.ToLower(col)]; ok {
			dests[i] = v.FieldByIndex(path).Addr().Interface()
		} else {
			dests[i] = new(any)
		}
	}
	if err := rows.Scan(dests...); err != nil {
		return fmt.Errorf("scan into %s: %w", v.Type(), err)
	}
	return nil
}

// ScanOne runs the query and scans its first row into dest, a pointer to a
// struct. It returns ErrNoRows when the result is empty.
func (cmd *Command) ScanOne(ctx context.Context, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return dberr.Argument("dest must be a pointer to a struct, got %T", dest)
	}

	rows, err := cmd.Query(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return cmd.conn.convertError(err, cmd.RawSQL())
		}
		return ErrNoRows
	}
	return scanStruct(rows, columns, v.Elem())
}

// ScanAll runs the query and appends every row to dest, a pointer to a slice
// of structs or struct pointers.
func (cmd *Command) ScanAll(ctx context.Context, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Slice {
		return dberr.Argument("dest must be a pointer to a slice, got %T", dest)
	}
	slice := v.Elem()
	elem := slice.Type().Elem()
	isPtr := elem.Kind() == reflect.Pointer
	if isPtr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return dberr.Argument("slice element must be a struct or struct pointer, got %s", elem)
	}

	rows, err := cmd.Query(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		item := reflect.New(elem)
		if err := scanStruct(rows, columns, item.Elem()); err != nil {
			return err
		}
		if isPtr {
			slice.Set(reflect.Append(slice, item))
		} else {
			slice.Set(reflect.Append(slice, item.Elem()))
		}
	}
	if err := rows.Err(); err != nil {
		return cmd.conn.convertError(err, cmd.RawSQL())
	}
	return nil
}
