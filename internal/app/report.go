package app

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/specialistvlad/genoflow/internal/workflow"
)

// Failure is a sample whose scripts could not be assembled.
type Failure struct {
	Sample string
	Err    error
}

// Report is the outcome of a run, per sample.
type Report struct {
	RunID     string
	Workflow  string
	Succeeded []*workflow.Result
	Failed    []Failure
	// Cohort is the path of the cohort post-process script, if any.
	Cohort string
	// Master is the path of the master script in master mode.
	Master string

	mu sync.Mutex
}

func (r *Report) succeed(res *workflow.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Succeeded = append(r.Succeeded, res)
}

func (r *Report) fail(sample string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, Failure{Sample: sample, Err: err})
}

// sort orders samples by name so reports are stable regardless of which
// worker finished first.
func (r *Report) sort() {
	sort.Slice(r.Succeeded, func(i, j int) bool { return r.Succeeded[i].Sample < r.Succeeded[j].Sample })
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].Sample < r.Failed[j].Sample })
}

// SucceededSamples returns the names of the samples that were assembled.
func (r *Report) SucceededSamples() []string {
	names := make([]string, 0, len(r.Succeeded))
	for _, res := range r.Succeeded {
		names = append(names, res.Sample)
	}
	return names
}

// Err summarizes the failed samples, or returns nil.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Sample, f.Err))
	}
	return fmt.Errorf("%d of %d samples failed:\n- %s",
		len(r.Failed), len(r.Failed)+len(r.Succeeded), strings.Join(parts, "\n- "))
}

func (r *Report) log(logger *slog.Logger) {
	for _, res := range r.Succeeded {
		logger.Info("Sample succeeded.", "sample", res.Sample, "scripts", len(res.Records), "products", len(res.Products))
	}
	for _, f := range r.Failed {
		logger.Error("Sample failed.", "sample", f.Sample, "error", f.Err)
	}
	logger.Info("Run finished.",
		"run_id", r.RunID,
		"workflow", r.Workflow,
		"succeeded", len(r.Succeeded),
		"failed", len(r.Failed),
	)
}
