package stage

import (
	"context"
	"fmt"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/capability"
)

// PreProcessing deconvolutes species with xenome, then trims reads with
// seqpurge or trimmomatic. seqpurge takes precedence but handles paired-end
// reads only, so single-end lanes fall through to trimmomatic.
func PreProcessing() Stage {
	return Stage{
		Name: "pre-processing",
		Defs: []Def{
			{Name: capability.Xenome, When: On(capability.Xenome), Run: xenome},
			FirstOf("trimming",
				Def{Name: capability.Seqpurge, When: All(On(capability.Seqpurge), PairedEnd), Run: seqpurge},
				Def{Name: capability.Trimmomatic, When: On(capability.Trimmomatic), Run: trimmomatic},
			),
		},
	}
}

// reads returns the current fastq pair of the lane. fastq2 is empty for
// single-end reads and required for paired-end ones.
func reads(in artifact.Artifact, sc *Context) (string, string, error) {
	fq1, err := in.Require(artifact.Fastq1)
	if err != nil {
		return "", "", err
	}
	if !sc.PairedEnd {
		return fq1, "", nil
	}
	fq2, err := in.Require(artifact.Fastq2)
	if err != nil {
		return "", "", err
	}
	return fq1, fq2, nil
}

// withReads records a new fastq pair, superseding the previous one.
func withReads(a artifact.Artifact, fq1, fq2 string) (artifact.Artifact, error) {
	a, err := a.Supersede(artifact.Fastq1, fq1)
	if err != nil {
		return a, err
	}
	if fq2 == "" {
		return a, nil
	}
	return a.Supersede(artifact.Fastq2, fq2)
}

func xenome(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	fq1, fq2, err := reads(in, sc)
	if err != nil {
		return in, err
	}

	prefix := sc.File(sc.Dirs.Fastq, ".xenome")
	cmd, err := sc.Step("Xenome classification", "xenome", map[string]string{
		"fastq1": fq1,
		"fastq2": fq2,
		"prefix": prefix,
	})
	if err != nil {
		return in, err
	}

	out := in.WithCommand(cmd)
	var graft1, graft2 string
	var discard []string
	if sc.PairedEnd {
		graft1, graft2 = prefix+"_human_1.fastq", prefix+"_human_2.fastq"
		for _, class := range []string{"mouse", "both", "ambiguous", "neither"} {
			discard = append(discard, fmt.Sprintf("%s_%s_1.fastq", prefix, class), fmt.Sprintf("%s_%s_2.fastq", prefix, class))
		}
	} else {
		graft1 = prefix + "_human.fastq"
		for _, class := range []string{"mouse", "both", "ambiguous", "neither"} {
			discard = append(discard, fmt.Sprintf("%s_%s.fastq", prefix, class))
		}
	}
	out = out.WithCleanup(discard...)
	return withReads(out, graft1, graft2)
}

func seqpurge(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	fq1, fq2, err := reads(in, sc)
	if err != nil {
		return in, err
	}

	out1 := sc.File(sc.Dirs.Fastq, ".seqpurge.R1.fastq.gz")
	out2 := sc.File(sc.Dirs.Fastq, ".seqpurge.R2.fastq.gz")
	cmd, err := sc.Step("Seqpurge trimming", "seqpurge", map[string]string{
		"fastq1": fq1,
		"fastq2": fq2,
		"out1":   out1,
		"out2":   out2,
	})
	if err != nil {
		return in, err
	}
	return withReads(in.WithCommand(cmd), out1, out2)
}

func trimmomatic(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	fq1, fq2, err := reads(in, sc)
	if err != nil {
		return in, err
	}

	params := map[string]string{
		"fastq1":        fq1,
		"fastq2":        fq2,
		"out2":          "",
		"out1_unpaired": "",
		"out2_unpaired": "",
	}
	var out1, out2 string
	var unpaired []string
	if sc.PairedEnd {
		out1 = sc.File(sc.Dirs.Fastq, ".trimmed.R1.fastq.gz")
		out2 = sc.File(sc.Dirs.Fastq, ".trimmed.R2.fastq.gz")
		unpaired = []string{
			sc.File(sc.Dirs.Fastq, ".unpaired.R1.fastq.gz"),
			sc.File(sc.Dirs.Fastq, ".unpaired.R2.fastq.gz"),
		}
		params["out1_unpaired"] = unpaired[0]
		params["out2_unpaired"] = unpaired[1]
		params["out2"] = out2
	} else {
		out1 = sc.File(sc.Dirs.Fastq, ".trimmed.fastq.gz")
	}
	params["out1"] = out1

	cmd, err := sc.Step("Trimmomatic trimming", "trimmomatic", params)
	if err != nil {
		return in, err
	}
	return withReads(in.WithCommand(cmd).WithCleanup(unpaired...), out1, out2)
}
