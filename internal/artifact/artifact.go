// Package artifact defines the value threaded between pipeline stages.
//
// An Artifact carries the shell text accumulated for one lane of a sample, the
// named output locations produced so far, and the intermediate paths that must
// be removed once the lane's script is assembled. Artifacts are immutable:
// every method that changes state returns a new value and leaves the receiver
// untouched, so a stage can never corrupt the input it was handed.
package artifact

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Well-known output keys shared by stages.
const (
	PrimaryFile    = "primary-file"
	IndexFile      = "index-file"
	SortedFile     = "sorted-file"
	Fastq1         = "fastq1"
	Fastq2         = "fastq2"
	VCF            = "vcf"
	ExpressionFile = "expression-file"
)

var (
	// ErrMissingOutput is returned when a stage requires an output key that no
	// upstream stage produced. It signals an inconsistent capability
	// configuration and is raised before any script is written.
	ErrMissingOutput = errors.New("required output is missing")
	// ErrEmptyOutput is returned when an empty key or path is recorded.
	ErrEmptyOutput = errors.New("output key and path must not be empty")
	// ErrOutputExists is returned by WithOutput when the key already points
	// at a different path. Replacing a producer goes through Supersede.
	ErrOutputExists = errors.New("output already recorded")
	// ErrPendingCleanup is returned when a path scheduled for removal is
	// recorded as an output.
	ErrPendingCleanup = errors.New("path is scheduled for cleanup")
)

// Artifact is the immutable state of one pipeline lane.
type Artifact struct {
	command string
	outputs map[string]string
	cleanup []string
	inputs  map[string]struct{}
}

// New returns an empty Artifact.
func New() Artifact {
	return Artifact{}
}

// FromOutputs returns an Artifact seeded with the given outputs and no
// command text. Empty keys or paths are rejected.
func FromOutputs(outputs map[string]string) (Artifact, error) {
	a := New()
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var err error
		if a, err = a.WithOutput(k, outputs[k]); err != nil {
			return Artifact{}, err
		}
	}
	return a, nil
}

// FromInputs returns an Artifact whose outputs are files the pipeline did not
// produce. Input paths are never scheduled for cleanup, even once superseded.
func FromInputs(inputs map[string]string) (Artifact, error) {
	a := New()
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var err error
		if a, err = a.WithInput(k, inputs[k]); err != nil {
			return Artifact{}, err
		}
	}
	return a, nil
}

// WithInput records a user-supplied path under key and protects it from
// cleanup.
func (a Artifact) WithInput(key, path string) (Artifact, error) {
	next, err := a.WithOutput(key, path)
	if err != nil {
		return a, err
	}
	next = next.clone()
	next.inputs[path] = struct{}{}
	return next, nil
}

// Command returns the accumulated shell text.
func (a Artifact) Command() string {
	return a.command
}

// WithCommand appends text to the command. A trailing newline is added when
// text does not end with one.
func (a Artifact) WithCommand(text string) Artifact {
	if text == "" {
		return a
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	next := a.clone()
	next.command = a.command + text
	return next
}

// Output returns the path recorded for key.
func (a Artifact) Output(key string) (string, bool) {
	p, ok := a.outputs[key]
	return p, ok
}

// Require returns the path recorded for key, or an error wrapping
// ErrMissingOutput.
func (a Artifact) Require(key string) (string, error) {
	p, ok := a.outputs[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingOutput, key)
	}
	return p, nil
}

// Outputs returns a copy of the output map.
func (a Artifact) Outputs() map[string]string {
	out := make(map[string]string, len(a.outputs))
	for k, v := range a.outputs {
		out[k] = v
	}
	return out
}

// Keys returns the recorded output keys in lexical order.
func (a Artifact) Keys() []string {
	keys := make([]string, 0, len(a.outputs))
	for k := range a.outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithOutput records path under key. Recording the same path twice is a
// no-op; recording a different path for an existing key is an error.
func (a Artifact) WithOutput(key, path string) (Artifact, error) {
	if key == "" || path == "" {
		return a, fmt.Errorf("%w: key=%q path=%q", ErrEmptyOutput, key, path)
	}
	if prev, ok := a.outputs[key]; ok {
		if prev == path {
			return a, nil
		}
		return a, fmt.Errorf("%w: %q is %q, not %q", ErrOutputExists, key, prev, path)
	}
	if a.pendingCleanup(path) {
		return a, fmt.Errorf("%w: %q", ErrPendingCleanup, path)
	}
	next := a.clone()
	next.outputs[key] = path
	return next, nil
}

// Supersede replaces the path recorded for key. The superseded path joins the
// cleanup set unless another output still references it. Superseding a key
// that was never written behaves like WithOutput.
func (a Artifact) Supersede(key, path string) (Artifact, error) {
	if key == "" || path == "" {
		return a, fmt.Errorf("%w: key=%q path=%q", ErrEmptyOutput, key, path)
	}
	prev, ok := a.outputs[key]
	if !ok {
		return a.WithOutput(key, path)
	}
	if prev == path {
		return a, nil
	}
	if a.pendingCleanup(path) {
		return a, fmt.Errorf("%w: %q", ErrPendingCleanup, path)
	}
	next := a.clone()
	next.outputs[key] = path
	return next.WithCleanup(prev), nil
}

// WithCleanup schedules paths for removal. Blank paths, paths already
// scheduled and paths still referenced by an output are skipped.
func (a Artifact) WithCleanup(paths ...string) Artifact {
	next := a.clone()
	for _, p := range paths {
		if _, input := next.inputs[p]; input || p == "" || next.pendingCleanup(p) || next.referenced(p) {
			continue
		}
		next.cleanup = append(next.cleanup, p)
	}
	return next
}

// Cleanup returns the scheduled paths in the order they were first added.
func (a Artifact) Cleanup() []string {
	out := make([]string, len(a.cleanup))
	copy(out, a.cleanup)
	return out
}

// Derive starts a side artifact that sees the same outputs but carries no
// command text and no cleanup obligations. The inherited outputs belong to
// the lane and are protected from cleanup in the side artifact. It is used
// by fan-out analyses that must not mutate the lane they read from.
func (a Artifact) Derive() Artifact {
	next := a.clone()
	next.command = ""
	next.cleanup = nil
	for _, p := range next.outputs {
		next.inputs[p] = struct{}{}
	}
	return next
}

// Merge returns a copy of a carrying the command text of other appended to
// its own and the union of both cleanup sets. Outputs of other are not
// imported.
func (a Artifact) Merge(other Artifact) Artifact {
	next := a.clone().WithCommand(other.command)
	for p := range other.inputs {
		next.inputs[p] = struct{}{}
	}
	return next.WithCleanup(other.cleanup...)
}

// Referenced reports whether any output points at path.
func (a Artifact) Referenced(path string) bool {
	return a.referenced(path)
}

func (a Artifact) referenced(path string) bool {
	for _, v := range a.outputs {
		if v == path {
			return true
		}
	}
	return false
}

func (a Artifact) pendingCleanup(path string) bool {
	for _, p := range a.cleanup {
		if p == path {
			return true
		}
	}
	return false
}

func (a Artifact) clone() Artifact {
	next := Artifact{
		command: a.command,
		outputs: make(map[string]string, len(a.outputs)+1),
		inputs:  make(map[string]struct{}, len(a.inputs)),
	}
	for k, v := range a.outputs {
		next.outputs[k] = v
	}
	for p := range a.inputs {
		next.inputs[p] = struct{}{}
	}
	if len(a.cleanup) > 0 {
		next.cleanup = make([]string, len(a.cleanup))
		copy(next.cleanup, a.cleanup)
	}
	return next
}
