package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/config"
	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/ledger"
	"github.com/specialistvlad/genoflow/internal/script"
	"github.com/specialistvlad/genoflow/internal/stage"
	"github.com/specialistvlad/genoflow/internal/syncpoll"
)

// DNANames are the variant-calling workflows. They share one stage chain
// and differ only in the names of their scripts.
var DNANames = []string{
	"DnaVar_Fastq",
	"DnaCaptureVar_Fastq",
	"DnaAmpliconVar_Fastq",
	"DnaWgsVar_Fastq",
}

// DNABamName is the variant-calling workflow over aligned BAMs.
const DNABamName = "DnaVar_Bam"

// DNA aligns every fastq lane in its own script, merges and post-processes
// the lanes in a post-alignment script, and fans out to the enabled variant
// callers. Case samples with a control are called against the control's
// post-processed alignment.
//
// Under a name ending in config.BamWorkflowSuffix the sample BAM is used as
// the final alignment: control samples get no scripts and each variant
// caller of a case is dispatched on its own.
type DNA struct {
	name string
	bam  bool
}

// NewDNA returns the DNA workflow registered under name.
func NewDNA(name string) *DNA {
	return &DNA{name: name, bam: strings.HasSuffix(name, config.BamWorkflowSuffix)}
}

func (w *DNA) Name() string { return w.name }

// alignmentPlan is the pure part of a DNA sample: the per-lane artifacts and
// the merged, post-processed alignment. Nothing is written while planning.
type alignmentPlan struct {
	lanes []artifact.Artifact
	post  artifact.Artifact
}

func (w *DNA) plan(ctx context.Context, env *Env, sample *config.Sample) (*alignmentPlan, error) {
	if w.bam {
		post, err := bamInput(sample)
		if err != nil {
			return nil, err
		}
		return &alignmentPlan{post: post}, nil
	}

	sc := env.stageContext(w.name, sample)
	p := &alignmentPlan{}
	for i := 1; i <= sample.Lanes(); i++ {
		lsc := sc.ForLane(i)
		lane, err := laneInput(sample, i, sc.PairedEnd)
		if err != nil {
			return nil, err
		}
		if lane, err = stage.PreProcessing().Apply(ctx, env.Caps, lane, lsc); err != nil {
			return nil, err
		}
		if lane, err = stage.PrimaryTransform().Apply(ctx, env.Caps, lane, lsc); err != nil {
			return nil, err
		}
		p.lanes = append(p.lanes, lane)
	}

	merge := stage.Stage{
		Name: "merge",
		Defs: []stage.Def{{Name: "lanes", Run: stage.MergeLanes(p.lanes)}},
	}
	post, err := merge.Apply(ctx, env.Caps, artifact.New(), sc)
	if err != nil {
		return nil, err
	}
	if post, err = stage.PostProcessing().Apply(ctx, env.Caps, post, sc); err != nil {
		return nil, err
	}
	p.post = post
	return p, nil
}

// controlOf resolves the matched control of sample. The control's final
// alignment path is derived by planning the control itself, which is
// deterministic and has no side effects.
func (w *DNA) controlOf(ctx context.Context, env *Env, sample *config.Sample) (*stage.Control, *syncpoll.Wait, error) {
	if sample.Control == "" || sample.IsControl() {
		return nil, nil, nil
	}
	control := env.Model.Sample(sample.Control)
	if control == nil {
		return nil, nil, fmt.Errorf("unknown control %q", sample.Control)
	}
	cp, err := w.plan(ctx, env, control)
	if err != nil {
		return nil, nil, fmt.Errorf("control %q: %w", control.Name, err)
	}
	bam, err := cp.post.Require(artifact.PrimaryFile)
	if err != nil {
		return nil, nil, fmt.Errorf("control %q: %w", control.Name, err)
	}
	if w.bam {
		return &stage.Control{Sample: control.Name, Bam: bam}, nil, nil
	}
	wait := syncpoll.NewWait(
		"post-alignment of control "+control.Name,
		env.Assembler.Naming().LogPath(TaskPostAlignment, control.Name, 0),
		TaskPostAlignment,
	)
	return &stage.Control{Sample: control.Name, Bam: bam}, &wait, nil
}

// Run assembles the alignment, post-alignment and variant-calling scripts
// of sample. Every script is built before the first one is written, so a
// failing branch leaves nothing behind. Variant-calling scripts are built
// before the post-alignment script, which launches them once the merged
// alignment exists.
func (w *DNA) Run(ctx context.Context, env *Env, sample *config.Sample) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("sample", sample.Name, "workflow", w.name)
	ctx = ctxlog.WithLogger(ctx, logger)

	res := &Result{Sample: sample.Name, Ledger: ledger.New()}
	if w.bam && sample.IsControl() {
		logger.Info("Control sample, nothing to assemble.")
		return res, nil
	}

	p, err := w.plan(ctx, env, sample)
	if err != nil {
		return nil, err
	}
	control, controlWait, err := w.controlOf(ctx, env, sample)
	if err != nil {
		return nil, err
	}

	asm := env.Assembler
	var lanes []*script.Record
	laneWaits := make([]syncpoll.Wait, 0, len(p.lanes))
	for i, lane := range p.lanes {
		rec, err := asm.Build(script.Request{
			Sample: sample.Name,
			Phase:  script.PhaseAlignment,
			Task:   TaskAlignment,
			Index:  i + 1,
			Ledger: res.Ledger,
		}, lane)
		if err != nil {
			return nil, err
		}
		lanes = append(lanes, rec)
		laneWaits = append(laneWaits, syncpoll.NewWait(
			fmt.Sprintf("alignment of %s lane %d", sample.Name, i+1), rec.LogPath, rec.Marker))
	}

	var secondaries []*script.Record
	if !sample.IsControl() {
		sc := env.stageContext(w.name, sample).WithControl(control)
		var waits []syncpoll.Wait
		if !w.bam {
			waits = append(waits, syncpoll.NewWait(
				"post-alignment of "+sample.Name,
				asm.Naming().LogPath(TaskPostAlignment, sample.Name, 0),
				TaskPostAlignment,
			))
		}
		if controlWait != nil {
			waits = append(waits, *controlWait)
		}

		for _, b := range stage.VariantCalling().Select(env.Caps, sc) {
			side, err := b.Apply(ctx, env.Caps, p.post, sc)
			if err != nil {
				return nil, err
			}
			rec, err := asm.Build(script.Request{
				Sample:  sample.Name,
				Phase:   script.PhaseSecondary,
				Task:    b.Task,
				Ledger:  res.Ledger,
				Waits:   waits,
				Chained: !w.bam,
			}, side)
			if err != nil {
				return nil, err
			}
			vcf, _ := side.Output(b.Product)
			secondaries = append(secondaries, rec)
			res.Products = append(res.Products, Product{Sample: sample.Name, Tool: b.Task, Path: vcf, LogPath: rec.LogPath, Marker: rec.Marker})
		}
	}

	res.Records = append(res.Records, lanes...)
	if !w.bam {
		post, err := asm.Build(script.Request{
			Sample: sample.Name,
			Phase:  script.PhasePostAlignment,
			Task:   TaskPostAlignment,
			Ledger: res.Ledger,
			Waits:  laneWaits,
		}, p.post.WithCommand(asm.LaunchText(secondaries...)))
		if err != nil {
			return nil, err
		}
		res.Records = append(res.Records, post)
	}
	res.Records = append(res.Records, secondaries...)

	if err := asm.Commit(ctx, res.Records...); err != nil {
		return nil, err
	}
	logger.Info("Assembled sample.", "scripts", len(res.Records), "variant_callers", len(secondaries))
	return res, nil
}

// PostProcess merges the variant calls of every case sample into one table.
func (w *DNA) PostProcess(ctx context.Context, env *Env, results []*Result) (*script.Record, error) {
	dirs := env.Layout.Cohort()
	return mergeProducts(ctx, env, w.name, results, cohortMerge{
		task:     TaskMergeMutation,
		template: "merge_mutation",
		step:     "Merge mutation calls",
		output:   filepath.Join(dirs.Mutation, w.name+".mutation.merged.txt"),
	})
}
