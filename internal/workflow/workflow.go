// Package workflow drives samples through the stage chain of a named
// pipeline and hands the resulting artifacts to the script assembler.
//
// A Workflow is stateless. Everything a run shares, such as the capability
// set, the renderer and the assembler, travels in an Env that is read-only
// once built, so the samples of a run can be processed concurrently.
package workflow

import (
	"context"
	"fmt"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/capability"
	"github.com/specialistvlad/genoflow/internal/config"
	"github.com/specialistvlad/genoflow/internal/fsutil"
	"github.com/specialistvlad/genoflow/internal/ledger"
	"github.com/specialistvlad/genoflow/internal/registry"
	"github.com/specialistvlad/genoflow/internal/render"
	"github.com/specialistvlad/genoflow/internal/script"
	"github.com/specialistvlad/genoflow/internal/stage"
)

// Task names shared by the workflows. They double as ledger entries and
// completion markers.
const (
	TaskAlignment       = "alignment"
	TaskPostAlignment   = "postalignment"
	TaskMergeMutation   = "mergeMutation"
	TaskMergeExpression = "mergeExpression"
)

// Workflow assembles the scripts of one pipeline.
type Workflow interface {
	Name() string
	// Run assembles every per-sample script of sample.
	Run(ctx context.Context, env *Env, sample *config.Sample) (*Result, error)
	// PostProcess assembles the cohort script over the successful results.
	// It returns nil when there is nothing to merge.
	PostProcess(ctx context.Context, env *Env, results []*Result) (*script.Record, error)
}

// Env is shared by every sample of a run.
type Env struct {
	Model     *config.Model
	Caps      capability.Set
	Layout    fsutil.Layout
	Renderer  render.Renderer
	Assembler *script.Assembler
	Params    map[string]string
}

// NewEnv returns an Env whose parameters are flattened from model.
func NewEnv(model *config.Model, caps capability.Set, layout fsutil.Layout, renderer render.Renderer, assembler *script.Assembler) *Env {
	return &Env{
		Model:     model,
		Caps:      caps,
		Layout:    layout,
		Renderer:  renderer,
		Assembler: assembler,
		Params:    model.Params(),
	}
}

// Product is a deliverable of a sample and the log that confirms it.
type Product struct {
	Sample  string
	Tool    string
	Path    string
	LogPath string
	Marker  string
}

// Result is what one sample produced.
type Result struct {
	Sample   string
	Records  []*script.Record
	Products []Product
	Ledger   *ledger.Ledger
}

// Module registers the built-in workflows.
type Module struct{}

var _ registry.Module[Workflow] = Module{}

// Register adds every built-in workflow to r.
func (Module) Register(r *registry.Registry[Workflow]) {
	for _, name := range DNANames {
		r.Register(name, NewDNA(name))
	}
	r.Register(DNABamName, NewDNA(DNABamName))
	r.Register(RNAName, NewRNA())
	r.Register(RNABamName, NewRNABam())
}

// stageContext returns the sample-level stage context of sample.
func (e *Env) stageContext(workflow string, sample *config.Sample) *stage.Context {
	return &stage.Context{
		Workflow:  workflow,
		Sample:    sample.Name,
		PairedEnd: e.Model.PairedEnd(),
		Threads:   e.Model.Queue.NumThreads,
		Dirs:      e.Layout.Sample(sample.Name),
		Renderer:  e.Renderer,
		Params:    e.Params,
	}
}

// laneInput returns the input artifact of lane index, 1-based.
func laneInput(sample *config.Sample, index int, paired bool) (artifact.Artifact, error) {
	i := index - 1
	if i < 0 || i >= len(sample.Fastq1) {
		return artifact.Artifact{}, fmt.Errorf("sample %q has no lane %d", sample.Name, index)
	}
	inputs := map[string]string{artifact.Fastq1: sample.Fastq1[i]}
	if paired {
		if i >= len(sample.Fastq2) {
			return artifact.Artifact{}, fmt.Errorf("sample %q has no fastq2 for lane %d", sample.Name, index)
		}
		inputs[artifact.Fastq2] = sample.Fastq2[i]
	}
	return artifact.FromInputs(inputs)
}

// bamInput returns the input artifact of an aligned sample.
func bamInput(sample *config.Sample) (artifact.Artifact, error) {
	if sample.Bam == "" {
		return artifact.Artifact{}, fmt.Errorf("sample %q has no bam", sample.Name)
	}
	return artifact.FromInputs(map[string]string{artifact.PrimaryFile: sample.Bam})
}

// products returns the deliverables of results. The marker of each product
// is the composite marker of its sample, so any completed task of the sample
// satisfies a wait on it.
func products(results []*Result) []Product {
	var out []Product
	for _, r := range results {
		if r == nil {
			continue
		}
		marker := r.Ledger.CompositeMarker()
		for _, p := range r.Products {
			p.Marker = marker
			out = append(out, p)
		}
	}
	return out
}
