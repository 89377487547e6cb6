// internal/app/store/moodle/errors.go
package moodle

import (
	"errors"
	"fmt"
)

// ErrAmbiguous is returned when a natural-key lookup matches more than one
// row. It is a data-integrity problem: callers report it and skip the record
// instead of picking the first row.
var ErrAmbiguous = errors.New("natural key matches more than one row")

// AmbiguousError carries the entity and key that matched several rows.
type AmbiguousError struct {
	Entity string
	Key    string
	Count  int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s %q matches %d rows", e.Entity, e.Key, e.Count)
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// Ambiguous builds an AmbiguousError.
func Ambiguous(entity, key string, count int) error {
	return &AmbiguousError{Entity: entity, Key: key, Count: count}
}
