package store

import (
	"context"
	"reflect"
	"strings"
	"time"

	perr "enginefeed/internal/platform/errors"
)

// ExecOne runs a write that must touch exactly one row
func ExecOne(ctx context.Context, q RowQuerier, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n != 1 {
		return perr.Newf(perr.ErrorCodeDB, "expected exactly one row affected, got %d", n)
	}
	return nil
}

// Scalar reads the first column of the first row
func Scalar[T any](ctx context.Context, q RowQuerier, sql string, args ...any) (T, error) {
	var v T
	err := q.QueryRow(ctx, sql, args...).Scan(&v)
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Collect drains rows through scan and closes them. Works for either backend's Rows
func Collect[T any](rows Rows, scan func(Row) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// StructsByName maps rows onto T by `db` tag, else field name, ignoring case.
// Unmatched columns are dropped and NULL leaves the zero value
func StructsByName[T any](ctx context.Context, q RowQuerier, sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return Collect(rows, byName[T](rows.Columns()))
}

// byName resolves columns to fields once and returns a per-row scanner
func byName[T any](cols []string) func(Row) (T, error) {
	rt := reflect.TypeFor[T]()
	fields := fieldsByKey(rt)
	target := make([]int, len(cols))
	for i, c := range cols {
		idx, ok := fields[strings.ToLower(c)]
		if !ok {
			idx = -1
		}
		target[i] = idx
	}

	return func(r Row) (T, error) {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		var zero T
		if err := r.Scan(ptrs...); err != nil {
			return zero, err
		}
		rv := reflect.New(rt).Elem()
		for i, idx := range target {
			if idx >= 0 {
				assign(rv.Field(idx), deref(vals[i]))
			}
		}
		return rv.Interface().(T), nil
	}
}

// fieldsByKey maps lowercased db tags or field names to exported field indexes
func fieldsByKey(t reflect.Type) map[string]int {
	out := make(map[string]int, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("db")
		if key == "" || key == "-" {
			key = f.Name
		}
		out[strings.ToLower(key)] = i
	}
	return out
}

func deref(v any) any {
	if t, ok := v.(*time.Time); ok {
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}

// assign sets dst from a driver value, converting where Go allows it.
// Values that cannot be converted leave dst untouched
func assign(dst reflect.Value, src any) {
	if src == nil {
		dst.SetZero()
		return
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(dst.Type()):
		dst.Set(sv)
	case dst.Kind() == reflect.String && sv.CanInt():
		// int to string would yield a rune
	case sv.Type().ConvertibleTo(dst.Type()):
		dst.Set(sv.Convert(dst.Type()))
	}
}
