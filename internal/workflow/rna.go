package workflow

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/capability"
	"github.com/specialistvlad/genoflow/internal/config"
	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/ledger"
	"github.com/specialistvlad/genoflow/internal/script"
	"github.com/specialistvlad/genoflow/internal/stage"
	"github.com/specialistvlad/genoflow/internal/syncpoll"
)

// Expression workflows.
const (
	RNAName    = "RnaExpression_Fastq"
	RNABamName = "RnaExpression_Bam"
)

// RNA runs one alignment script per sample over the concatenated lanes and
// fans out to the enabled expression quantifiers. The BAM variant skips the
// alignment script and dispatches each quantifier on its own.
type RNA struct {
	name string
	bam  bool
}

// NewRNA returns the expression workflow over fastq lanes.
func NewRNA() *RNA { return &RNA{name: RNAName} }

// NewRNABam returns the expression workflow over aligned BAMs.
func NewRNABam() *RNA { return &RNA{name: RNABamName, bam: true} }

func (w *RNA) Name() string { return w.name }

// mergeFastq concatenates the lanes of sample into one fastq pair. A single
// lane is used in place.
func mergeFastq(sample *config.Sample, sc *stage.Context) (artifact.Artifact, error) {
	if sample.Lanes() == 1 {
		return laneInput(sample, 1, sc.PairedEnd)
	}

	type mate struct {
		key   string
		files []string
		name  string
	}
	reads := []mate{{artifact.Fastq1, sample.Fastq1, "R1"}}
	if sc.PairedEnd {
		reads = append(reads, mate{artifact.Fastq2, sample.Fastq2, "R2"})
	}

	art := artifact.New()
	for _, r := range reads {
		merged := filepath.Join(sc.Dirs.Fastq, sample.Name+"_"+r.name+".merged.fastq.gz")
		cmd, err := sc.Step("Merge "+r.name+" lanes", "merge_fastq", map[string]string{
			"inputs": strings.Join(r.files, " "),
			"output": merged,
		})
		if err != nil {
			return art, err
		}
		if art, err = art.WithCommand(cmd).WithOutput(r.key, merged); err != nil {
			return art, err
		}
	}
	return art, nil
}

// Run assembles the alignment and quantification scripts of sample.
// Duplicates are marked in the alignment script unless RSEM is enabled,
// which needs the transcriptome alignment untouched. Nothing is written
// until every script has been built.
func (w *RNA) Run(ctx context.Context, env *Env, sample *config.Sample) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("sample", sample.Name, "workflow", w.name)
	ctx = ctxlog.WithLogger(ctx, logger)

	sc := env.stageContext(w.name, sample)
	art, err := w.alignment(ctx, env, sample, sc)
	if err != nil {
		return nil, err
	}

	asm := env.Assembler
	res := &Result{Sample: sample.Name, Ledger: ledger.New()}
	var waits []syncpoll.Wait
	if !w.bam {
		alignLog := asm.Naming().LogPath(TaskAlignment, sample.Name, 0)
		waits = append(waits, syncpoll.NewWait("alignment of "+sample.Name, alignLog, TaskAlignment))
	}

	var secondaries []*script.Record
	for _, b := range stage.Expression().Select(env.Caps, sc) {
		side, err := b.Apply(ctx, env.Caps, art, sc)
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
		path, _ := side.Output(b.Product)
		secondaries = append(secondaries, rec)
		res.Products = append(res.Products, Product{Sample: sample.Name, Tool: b.Task, Path: path, LogPath: rec.LogPath, Marker: rec.Marker})
	}

	if !w.bam {
		rec, err := asm.Build(script.Request{
			Sample: sample.Name,
			Phase:  script.PhaseAlignment,
			Task:   TaskAlignment,
			Ledger: res.Ledger,
		}, art.WithCommand(asm.LaunchText(secondaries...)))
		if err != nil {
			return nil, err
		}
		// Salmon quantifies during alignment.
		if quant, ok := art.Output(artifact.ExpressionFile); ok {
			res.Products = append(res.Products, Product{Sample: sample.Name, Tool: capability.Salmon, Path: quant, LogPath: rec.LogPath, Marker: rec.Marker})
		}
		res.Records = append(res.Records, rec)
	}
	res.Records = append(res.Records, secondaries...)

	if err := asm.Commit(ctx, res.Records...); err != nil {
		return nil, err
	}
	logger.Info("Assembled sample.", "scripts", len(res.Records), "quantifiers", len(secondaries))
	return res, nil
}

// alignment returns the artifact the quantifiers read: the sample BAM, or
// the merged lanes taken through pre-processing and alignment.
func (w *RNA) alignment(ctx context.Context, env *Env, sample *config.Sample, sc *stage.Context) (artifact.Artifact, error) {
	if w.bam {
		return bamInput(sample)
	}
	art, err := mergeFastq(sample, sc)
	if err != nil {
		return art, err
	}
	if art, err = stage.PreProcessing().Apply(ctx, env.Caps, art, sc); err != nil {
		return art, err
	}
	if art, err = stage.PrimaryTransform().Apply(ctx, env.Caps, art, sc); err != nil {
		return art, err
	}
	if !env.Caps.Enabled(capability.Rsem) {
		if art, err = stage.DuplicateMarking().Apply(ctx, env.Caps, art, sc); err != nil {
			return art, err
		}
	}
	return art, nil
}

// PostProcess merges the expression tables of every sample.
func (w *RNA) PostProcess(ctx context.Context, env *Env, results []*Result) (*script.Record, error) {
	return mergeProducts(ctx, env, w.name, results, cohortMerge{
		task:     TaskMergeExpression,
		template: "merge_expression",
		step:     "Merge expression tables",
		output:   filepath.Join(env.Layout.Cohort().Expression, w.name+".expression.merged.txt"),
	})
}
