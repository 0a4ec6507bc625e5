package stage

import (
	"context"
	"path/filepath"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/capability"
)

// PrimaryTransform runs exactly one aligner or quantifier, picked by fixed
// precedence. When none is enabled the lane passes through unchanged.
func PrimaryTransform() Stage {
	return Stage{
		Name: "primary",
		Defs: []Def{
			FirstOf("aligner",
				Def{Name: capability.Star, When: On(capability.Star), Run: star},
				Def{Name: capability.Hisat2, When: On(capability.Hisat2), Run: pipedAligner(capability.Hisat2, "HISAT2 alignment")},
				Def{Name: capability.Salmon, When: On(capability.Salmon), Run: salmon},
				Def{Name: capability.Bwa, When: On(capability.Bwa), Run: pipedAligner(capability.Bwa, "BWA alignment")},
				Def{Name: capability.Novoalign, When: On(capability.Novoalign), Run: pipedAligner(capability.Novoalign, "Novoalign alignment")},
			),
		},
	}
}

// withAlignment records a coordinate-sorted, indexed alignment as the lane's
// canonical file.
func withAlignment(a artifact.Artifact, bam string) (artifact.Artifact, error) {
	a, err := a.Supersede(artifact.PrimaryFile, bam)
	if err != nil {
		return a, err
	}
	return a.Supersede(artifact.IndexFile, bam+".bai")
}

// pipedAligner covers aligners whose output is streamed straight into a
// coordinate sort, so no unsorted intermediate is left behind.
func pipedAligner(tool, step string) Func {
	return func(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
		fq1, fq2, err := reads(in, sc)
		if err != nil {
			return in, err
		}
		bam := sc.File(sc.Dirs.Bam, "."+tool+".sorted.bam")
		cmd, err := sc.Step(step, tool, map[string]string{
			"fastq1": fq1,
			"fastq2": fq2,
			"output": bam,
		})
		if err != nil {
			return in, err
		}
		return withAlignment(in.WithCommand(cmd), bam)
	}
}

func star(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	fq1, fq2, err := reads(in, sc)
	if err != nil {
		return in, err
	}
	bam := sc.File(sc.Dirs.Bam, ".star.sorted.bam")
	cmd, err := sc.Step("STAR alignment", capability.Star, map[string]string{
		"fastq1": fq1,
		"fastq2": fq2,
		"prefix": sc.File(sc.Dirs.Bam, ".star."),
		"output": bam,
	})
	if err != nil {
		return in, err
	}
	return withAlignment(in.WithCommand(cmd), bam)
}

// salmon quantifies without aligning, so the lane gains an expression file
// but no primary alignment.
func salmon(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	fq1, fq2, err := reads(in, sc)
	if err != nil {
		return in, err
	}
	outdir := filepath.Join(sc.Dirs.Expression, capability.Salmon, sc.Lane())
	cmd, err := sc.Step("Salmon quantification", capability.Salmon, map[string]string{
		"fastq1": fq1,
		"fastq2": fq2,
		"outdir": outdir,
	})
	if err != nil {
		return in, err
	}
	return in.WithCommand(cmd).Supersede(artifact.ExpressionFile, filepath.Join(outdir, "quant.sf"))
}

// MergeLanes combines the per-lane alignments of a sample into one
// alignment. A single lane is adopted as is. Lane files are scheduled for
// cleanup once merged.
func MergeLanes(lanes []artifact.Artifact) Func {
	return func(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
		bams := make([]string, 0, len(lanes))
		var indexes []string
		for _, lane := range lanes {
			bam, err := lane.Require(artifact.PrimaryFile)
			if err != nil {
				return in, err
			}
			bams = append(bams, bam)
			if bai, ok := lane.Output(artifact.IndexFile); ok {
				indexes = append(indexes, bai)
			}
		}
		if len(bams) == 1 {
			out, err := in.WithOutput(artifact.PrimaryFile, bams[0])
			if err != nil {
				return in, err
			}
			if len(indexes) == 1 {
				return out.WithOutput(artifact.IndexFile, indexes[0])
			}
			return out, nil
		}

		merged := sc.File(sc.Dirs.Bam, ".merged.sorted.bam")
		cmd, err := sc.Step("Merge lane alignments", "merge_bams", map[string]string{
			"inputs": joinPaths(bams),
			"output": merged,
		})
		if err != nil {
			return in, err
		}
		out, err := withAlignment(in.WithCommand(cmd), merged)
		if err != nil {
			return in, err
		}
		return out.WithCleanup(append(bams, indexes...)...), nil
	}
}
