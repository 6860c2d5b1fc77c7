// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package vartype provides optional values that remember whether they were ever set.
package vartype

import (
	"fmt"
	"log/slog"
)

const unset = "not available"

// Variable holds an optional value of type T. The zero Variable is unset. Variables are plain
// values, copies don't share state.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable returns a Variable holding value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{value: value, isset: true}
}

// Set stores val.
func (v *Variable[T]) Set(val T) {
	v.value, v.isset = val, true
}

// Reset drops the stored value.
func (v *Variable[T]) Reset() {
	*v = Variable[T]{}
}

// Get returns the value and whether it is set.
func (v Variable[T]) Get() (T, bool) {
	return v.value, v.isset
}

// Value returns the value, or the zero value of T if unset.
func (v Variable[T]) Value() T {
	return v.value
}

func (v Variable[T]) IsSet() bool {
	return v.isset
}

func (v Variable[T]) String() string {
	if !v.isset {
		return unset
	}
	return fmt.Sprint(v.value)
}

// LogValue implements slog.LogValuer. Values implementing slog.LogValuer themselves are resolved
// by the handler.
func (v Variable[T]) LogValue() slog.Value {
	if !v.isset {
		return slog.StringValue(unset)
	}
	return slog.AnyValue(v.value)
}
