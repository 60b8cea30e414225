package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// RecordName builds a collision-resistant record name from a type tag, a
// timestamp and a short unique suffix, e.g. EMAIL_20260831_154500_1a2b3c4d.
// Producers and the engine use the same scheme so that a same-named record in
// the destination partition always signals a genuine conflict.
func RecordName(kind string, at time.Time) string {
	suffix := New()
	if idx := strings.Index(suffix, "-"); idx > 0 {
		suffix = suffix[:idx]
	}
	return fmt.Sprintf("%s_%s_%s", strings.ToUpper(kind), at.Format("20060102_150405"), suffix)
}
