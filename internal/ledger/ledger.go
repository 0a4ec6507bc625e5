// Package ledger records the ordered task names completed for one sample.
//
// The ledger feeds two consumers: script and log file naming, and the success
// marker a downstream wait matches against. Each sample owns its own Ledger;
// instances are not safe for concurrent use.
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// MarkerDelimiter separates task names in a composite success marker.
const MarkerDelimiter = "|"

// ErrInvalidTaskName is returned for names that cannot be used verbatim in
// file names and markers.
var ErrInvalidTaskName = errors.New("invalid task name")

// Ledger is an insertion-ordered set of task names.
type Ledger struct {
	names []string
	seen  map[string]struct{}
	last  string
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// ValidateName checks that name is usable as a task name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidTaskName)
	case strings.Contains(name, "/"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidTaskName, name)
	case strings.Contains(name, MarkerDelimiter):
		return fmt.Errorf("%w: %q contains the marker delimiter", ErrInvalidTaskName, name)
	case strings.ContainsAny(name, "\n'"):
		return fmt.Errorf("%w: %q contains a newline or quote", ErrInvalidTaskName, name)
	}
	return nil
}

// Append records name. Appending a name that is already present leaves the
// order untouched but makes it the most recent task.
func (l *Ledger) Append(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, ok := l.seen[name]; !ok {
		l.seen[name] = struct{}{}
		l.names = append(l.names, name)
	}
	l.last = name
	return nil
}

// Snapshot returns a copy of the recorded names in insertion order.
func (l *Ledger) Snapshot() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Join concatenates the recorded names with delim.
func (l *Ledger) Join(delim string) string {
	return strings.Join(l.names, delim)
}

// Len returns the number of distinct names.
func (l *Ledger) Len() int {
	return len(l.names)
}

// Contains reports whether name was recorded.
func (l *Ledger) Contains(name string) bool {
	_, ok := l.seen[name]
	return ok
}

// Last returns the most recently appended name, or "" for an empty ledger.
func (l *Ledger) Last() string {
	return l.last
}

// SuccessMarker is the marker written by the job that completed the most
// recent task.
func (l *Ledger) SuccessMarker() string {
	return l.last
}

// CompositeMarker joins every recorded name with MarkerDelimiter. A wait
// built from it accepts completion of any of the recorded tasks, which is
// used when several independent producers log under one sample.
func (l *Ledger) CompositeMarker() string {
	return l.Join(MarkerDelimiter)
}
