package stage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/capability"
)

// ErrIncompatibleTools is returned when the enabled capabilities cannot be
// combined in one run.
var ErrIncompatibleTools = errors.New("incompatible tools")

// Branch is one capability-gated secondary analysis. It produces a side
// Artifact with its own script, and never mutates the lane it reads.
type Branch struct {
	// Task names the branch in the ledger and in script file names.
	Task string
	// Product is the output key holding the branch deliverable.
	Product string
	When    Predicate
	Run     Func
}

// Fanout is an ordered set of secondary branches.
type Fanout struct {
	Name     string
	Branches []Branch
}

// Select returns the branches enabled for sc, in declared order.
func (f Fanout) Select(caps capability.Set, sc *Context) []Branch {
	var out []Branch
	for _, b := range f.Branches {
		if b.When == nil || b.When(caps, sc) {
			out = append(out, b)
		}
	}
	return out
}

// Apply runs b on a side artifact derived from lane.
func (b Branch) Apply(ctx context.Context, caps capability.Set, lane artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	side, err := b.Run(ctx, caps, lane.Derive(), sc)
	if err != nil {
		return side, fmt.Errorf("%s: %w", b.Task, err)
	}
	if _, err := side.Require(b.Product); err != nil {
		return side, fmt.Errorf("%s: %w", b.Task, err)
	}
	return side, nil
}

// VariantCalling fans out to the enabled variant callers. Callers that need
// a matched normal run only for case samples with a control; germline-style
// callers run only without one.
func VariantCalling() Fanout {
	unpaired := Not(HasControl)
	return Fanout{
		Name: "variant-calling",
		Branches: []Branch{
			variantBranch(capability.Vardict, "vardict", "VarDict detection", ".vcf", nil),
			variantBranch(capability.Mutect1, "mutect1", "MuTect1 detection", ".vcf", unpaired),
			variantBranch(capability.Mutect2, "mutect2", "Mutect2 detection", ".vcf", HasControl),
			variantBranch(capability.Strelka2, "strelka2", "Strelka2 detection", ".vcf.gz", nil),
			variantBranch(capability.Lofreq, "lofreq", "LoFreq detection", ".vcf.gz", nil),
			variantBranch(capability.Scalpel, "scalpel", "Scalpel detection", ".vcf", nil),
			variantBranch(capability.GatkHaplotypeCaller, "gatk_haplotype_caller", "GATK haplotype caller detection", ".vcf", unpaired),
			variantBranch(capability.Freebayes, "freebayes", "Freebayes detection", ".vcf", unpaired),
		},
	}
}

// Expression fans out to the enabled expression quantifiers.
func Expression() Fanout {
	return Fanout{
		Name: "expression",
		Branches: []Branch{
			expressionBranch(capability.Rsem, "rsem", "RSEM quantification", ".genes.results"),
			expressionBranch(capability.FeatureCount, "feature_count", "featureCounts quantification", ".featureCount.txt"),
			expressionBranch(capability.Cufflinks, "cufflinks", "Cufflinks quantification", ".cufflinks.fpkm_tracking"),
			expressionBranch(capability.Stringtie, "stringtie", "StringTie quantification", ".stringtie.abundance.txt"),
		},
	}
}

func variantBranch(tool, template, step, ext string, extra Predicate) Branch {
	when := On(tool)
	if extra != nil {
		when = All(when, extra)
	}
	return Branch{
		Task:    tool,
		Product: artifact.VCF,
		When:    when,
		Run: func(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
			bam, err := in.Require(artifact.PrimaryFile)
			if err != nil {
				return in, err
			}
			if sc.Control != nil && sc.Control.Bam == "" {
				return in, fmt.Errorf("%w: control alignment of %q", artifact.ErrMissingOutput, sc.Control.Sample)
			}

			outdir := filepath.Join(sc.Dirs.Mutation, tool)
			raw := filepath.Join(outdir, sc.Lane()+"."+tool+ext)
			cmd, err := sc.Step(step, template, map[string]string{
				"input":  bam,
				"output": raw,
				"outdir": outdir,
			})
			if err != nil {
				return in, err
			}
			out, err := in.WithCommand(cmd).Supersede(artifact.VCF, raw)
			if err != nil {
				return in, err
			}

			annotated := filepath.Join(outdir, sc.Lane()+"."+tool+".snpeff.vcf")
			cmd, err = sc.Step("SnpEff annotation", "snpeff", map[string]string{
				"input":  raw,
				"output": annotated,
			})
			if err != nil {
				return in, err
			}
			return out.WithCommand(cmd).Supersede(artifact.VCF, annotated)
		},
	}
}

func expressionBranch(tool, template, step, suffix string) Branch {
	return Branch{
		Task:    tool,
		Product: artifact.ExpressionFile,
		When:    On(tool),
		Run: func(_ context.Context, _ capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
			bam, err := in.Require(artifact.PrimaryFile)
			if err != nil {
				return in, err
			}
			outdir := filepath.Join(sc.Dirs.Expression, tool)
			result := filepath.Join(outdir, sc.Lane()+suffix)
			cmd, err := sc.Step(step, template, map[string]string{
				"input":  bam,
				"output": result,
				"outdir": outdir,
			})
			if err != nil {
				return in, err
			}
			return in.WithCommand(cmd).Supersede(artifact.ExpressionFile, result)
		},
	}
}

// CheckCompatibility rejects capability combinations no pipeline can honour.
// It runs before any sample is assembled.
func CheckCompatibility(caps capability.Set) error {
	if caps.Enabled(capability.Hisat2) && caps.Enabled(capability.Rsem) {
		return fmt.Errorf("%w: HISAT2 is not compatible with RSEM, please change either one", ErrIncompatibleTools)
	}
	return nil
}

func joinPaths(paths []string) string {
	return strings.Join(paths, " ")
}
