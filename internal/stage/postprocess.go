package stage

import (
	"context"
	"strings"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/capability"
)

// Output keys produced by post-processing.
const (
	MarkdupFile = "markdup-file"
	QCFile      = "qc-file"
)

// DuplicateMarking marks duplicates, optionally removes them, and collects
// alignment metrics. Metrics are collected on the duplicate-marked file, so
// qc and rmdup both require a preceding picard step.
func DuplicateMarking() Stage {
	return Stage{
		Name: "duplicate-marking",
		Defs: duplicateDefs(),
	}
}

// PostProcessing is DuplicateMarking followed by local realignment and base
// quality recalibration. Realignment is skipped when mutect2 is enabled,
// since Mutect2 reassembles haplotypes itself.
func PostProcessing() Stage {
	realign := Not(On(capability.Mutect2))
	defs := duplicateDefs()
	defs = append(defs,
		FirstOf("realignment",
			Def{Name: capability.AbraRealign, When: All(On(capability.AbraRealign), realign), Run: abraRealign},
			Def{Name: capability.GatkRealign, When: All(On(capability.GatkRealign), realign), Run: gatkRealign},
		),
		Def{Name: "recalibration", When: All(On(capability.GatkRealign), realign), Run: recalibrate},
	)
	return Stage{Name: "post-processing", Defs: defs}
}

func duplicateDefs() []Def {
	return []Def{
		{Name: capability.Picard, When: On(capability.Picard), Run: markDuplicates},
		{Name: capability.Rmdup, When: On(capability.Rmdup), Run: removeDuplicates},
		{Name: capability.QC, When: On(capability.QC), Run: alignmentQC},
	}
}

func markDuplicates(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	bam, err := in.Require(artifact.PrimaryFile)
	if err != nil {
		return in, err
	}
	out := sc.File(sc.Dirs.Bam, ".markdup.bam")
	cmd, err := sc.Step("Mark duplicates", "picard_markdup", map[string]string{
		"input":   bam,
		"output":  out,
		"metrics": sc.File(sc.Dirs.QC, ".markdup.metrics"),
	})
	if err != nil {
		return in, err
	}

	next, err := in.WithCommand(cmd).Supersede(artifact.PrimaryFile, out)
	if err != nil {
		return in, err
	}
	if next, err = next.Supersede(artifact.IndexFile, strings.TrimSuffix(out, ".bam")+".bai"); err != nil {
		return in, err
	}
	return next.WithOutput(MarkdupFile, out)
}

func removeDuplicates(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	marked, err := in.Require(MarkdupFile)
	if err != nil {
		return in, err
	}
	out := sc.File(sc.Dirs.Bam, ".rmdup.bam")
	cmd, err := sc.Step("Remove duplicates", "rmdup", map[string]string{
		"input":  marked,
		"output": out,
	})
	if err != nil {
		return in, err
	}
	return withAlignment(in.WithCommand(cmd), out)
}

func alignmentQC(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	marked, err := in.Require(MarkdupFile)
	if err != nil {
		return in, err
	}
	out := sc.File(sc.Dirs.QC, ".alignment_metrics.txt")
	cmd, err := sc.Step("Alignment QC", "qc", map[string]string{
		"input":  marked,
		"output": out,
	})
	if err != nil {
		return in, err
	}
	return in.WithCommand(cmd).WithOutput(QCFile, out)
}

func abraRealign(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	bam, err := in.Require(artifact.PrimaryFile)
	if err != nil {
		return in, err
	}
	out := sc.File(sc.Dirs.Bam, ".realign.bam")
	cmd, err := sc.Step("ABRA realignment", "abra_realign", map[string]string{
		"input":  bam,
		"output": out,
	})
	if err != nil {
		return in, err
	}
	return withAlignment(in.WithCommand(cmd), out)
}

func gatkRealign(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	bam, err := in.Require(artifact.PrimaryFile)
	if err != nil {
		return in, err
	}
	out := sc.File(sc.Dirs.Bam, ".realign.bam")
	cmd, err := sc.Step("GATK realignment", "gatk_realign", map[string]string{
		"input":  bam,
		"output": out,
	})
	if err != nil {
		return in, err
	}
	next, err := in.WithCommand(cmd).Supersede(artifact.PrimaryFile, out)
	if err != nil {
		return in, err
	}
	return next.Supersede(artifact.IndexFile, strings.TrimSuffix(out, ".bam")+".bai")
}

func recalibrate(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	bam, err := in.Require(artifact.PrimaryFile)
	if err != nil {
		return in, err
	}
	out := sc.File(sc.Dirs.Bam, ".recal.bam")
	table := sc.File(sc.Dirs.QC, ".recal.table")
	cmd, err := sc.Step("Base recalibration", "gatk_recalibrate", map[string]string{
		"input":  bam,
		"output": out,
		"table":  table,
	})
	if err != nil {
		return in, err
	}
	next, err := in.WithCommand(cmd).Supersede(artifact.PrimaryFile, out)
	if err != nil {
		return in, err
	}
	return next.Supersede(artifact.IndexFile, strings.TrimSuffix(out, ".bam")+".bai")
}
