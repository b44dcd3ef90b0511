package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Record is a single stored preference in backend-neutral form.
// Kind names the primitive type ("bool", "int", "long", "float", "string")
// and Value holds its canonical text encoding.
type Record struct {
	Kind      string
	Value     string
	UpdatedAt time.Time
}
