// Package ref models a relationship column that is either a bare id or the
// expanded record it points at.
package ref

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrUnresolved = errors.New("reference is empty")

// Loader fetches the referenced record by id.
type Loader[T any] func(ctx context.Context, id int) (*T, error)

// Ref points at a T by id and optionally carries the expanded value.
// In SQL it reads and writes as the id column.
type Ref[T any] struct {
	id    int
	value *T
}

func ID[T any](id int) Ref[T] {
	return Ref[T]{id: id}
}

func Expanded[T any](id int, v *T) Ref[T] {
	return Ref[T]{id: id, value: v}
}

func (r Ref[T]) ID() int {
	return r.id
}

func (r Ref[T]) IsZero() bool {
	return r.id == 0 && r.value == nil
}

// Get returns the expanded value if the reference carries one.
func (r Ref[T]) Get() (*T, bool) {
	return r.value, r.value != nil
}

// Resolve returns the expanded value, loading it by id when needed.
func (r Ref[T]) Resolve(ctx context.Context, load Loader[T]) (*T, error) {
	if r.value != nil {
		return r.value, nil
	}
	if r.id == 0 {
		return nil, ErrUnresolved
	}
	return load(ctx, r.id)
}

// Expand returns a copy of r carrying v.
func (r Ref[T]) Expand(v *T) Ref[T] {
	return Ref[T]{id: r.id, value: v}
}

func (r *Ref[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = Ref[T]{}
	case int64:
		*r = Ref[T]{id: int(v)}
	case int32:
		*r = Ref[T]{id: int(v)}
	case int:
		*r = Ref[T]{id: v}
	case []byte:
		id, err := strconv.Atoi(string(v))
		if err != nil {
			return fmt.Errorf("ref: invalid id %q: %w", v, err)
		}
		*r = Ref[T]{id: id}
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ref: invalid id %q: %w", v, err)
		}
		*r = Ref[T]{id: id}
	default:
		return fmt.Errorf("ref: cannot scan %T", src)
	}
	return nil
}

func (r Ref[T]) Value() (driver.Value, error) {
	if r.id == 0 {
		return nil, nil
	}
	return int64(r.id), nil
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.value != nil {
		return json.Marshal(r.value)
	}
	if r.id == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(r.id)), nil
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Ref[T]{}
		return nil
	}

	if len(data) > 0 && data[0] != '{' {
		var id int
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("ref: %w", err)
		}
		*r = Ref[T]{id: id}
		return nil
	}

	var head struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	*r = Ref[T]{id: head.ID, value: v}
	return nil
}
