// Package manager collects assembled scripts instead of dispatching them, and
// later emits one master script plus a dependency manifest for the whole run.
package manager

import (
	"context"
	"sort"
	"sync"

	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/fsutil"
	"github.com/specialistvlad/genoflow/internal/script"
)

// Manager is a goroutine-safe, append-only collection of scripts keyed by
// sample and phase. It implements script.Submitter for deferred mode.
type Manager struct {
	mu      sync.Mutex
	scripts map[string]map[script.Phase][]*script.Record
	samples []string

	// base dispatches the master script once it is built.
	base script.Submitter
}

var _ script.Submitter = (*Manager)(nil)

// New returns an empty Manager. base dispatches the master script; nil
// writes it without running it.
func New(base script.Submitter) *Manager {
	if base == nil {
		base = script.WriteOnly{}
	}
	return &Manager{
		scripts: make(map[string]map[script.Phase][]*script.Record),
		base:    base,
	}
}

func (*Manager) Mode() script.Mode { return script.ModeDeferred }

// Submit collects rec.
func (m *Manager) Submit(ctx context.Context, rec *script.Record) error {
	m.Add(rec)
	ctxlog.FromContext(ctx).Debug("Deferred script.", "sample", rec.Sample, "phase", rec.Phase, "task", rec.Task)
	return nil
}

// LaunchLine is always empty: the master script starts every collected
// script itself.
func (*Manager) LaunchLine(*script.Record) string { return "" }

// Base returns the submitter that dispatches the master script.
func (m *Manager) Base() script.Submitter { return m.base }

// Add appends rec to its sample and phase.
func (m *Manager) Add(rec *script.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	phases, ok := m.scripts[rec.Sample]
	if !ok {
		phases = make(map[script.Phase][]*script.Record)
		m.scripts[rec.Sample] = phases
		m.samples = append(m.samples, rec.Sample)
	}
	phases[rec.Phase] = append(phases[rec.Phase], rec)
}

// Scripts returns the records of sample and phase in the order they were
// added.
func (m *Manager) Scripts(sample string, phase script.Phase) []*script.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.scripts[sample][phase]
	return append([]*script.Record(nil), recs...)
}

// Samples returns every sample with at least one script, sorted, with the
// cohort last.
func (m *Manager) Samples() []string {
	m.mu.Lock()
	out := append([]string(nil), m.samples...)
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i] == fsutil.CohortSample, out[j] == fsutil.CohortSample
		if ci != cj {
			return cj
		}
		return out[i] < out[j]
	})
	return out
}

// Len returns the number of collected scripts.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, phases := range m.scripts {
		for _, recs := range phases {
			n += len(recs)
		}
	}
	return n
}
