package stage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/capability"
	"github.com/specialistvlad/genoflow/internal/fsutil"
	"github.com/specialistvlad/genoflow/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRenderer renders every template as "run <name>" so tests can assert on
// the order of steps without depending on tool command lines.
var echoRenderer = render.Func(func(name string, _ map[string]string) (string, error) {
	return "run " + name + "\n", nil
})

func newContext(t *testing.T, paired bool) *Context {
	t.Helper()
	layout := fsutil.Layout{Root: "/out"}
	return &Context{
		Workflow:  "DnaVar_Fastq",
		Sample:    "S1",
		Index:     1,
		PairedEnd: paired,
		Threads:   4,
		Dirs:      layout.Sample("S1"),
		Renderer:  echoRenderer,
	}
}

func newLane(t *testing.T, paired bool) artifact.Artifact {
	t.Helper()
	inputs := map[string]string{artifact.Fastq1: "/in/S1_R1.fastq.gz"}
	if paired {
		inputs[artifact.Fastq2] = "/in/S1_R2.fastq.gz"
	}
	a, err := artifact.FromInputs(inputs)
	require.NoError(t, err)
	return a
}

func TestPrimaryTransform_BwaOnlyLeavesNothingToClean(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	sc := newContext(t, true)
	caps := capability.Of(capability.Bwa)

	// --- Act ---
	out, err := PrimaryTransform().Apply(context.Background(), caps, newLane(t, true), sc)

	// --- Assert ---
	require.NoError(t, err)
	bam, err := out.Require(artifact.PrimaryFile)
	require.NoError(t, err)
	assert.Equal(t, "/out/S1/bam/S1_1.bwa.sorted.bam", bam)
	assert.Empty(t, out.Cleanup())
	assert.Contains(t, out.Command(), "run bwa\n")
	assert.Contains(t, out.Command(), "'Begin Step: BWA alignment'")
}

func TestPrimaryTransform_Precedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		caps capability.Set
		want string
	}{
		{"star wins over everything", capability.Of(capability.Bwa, capability.Hisat2, capability.Star), capability.Star},
		{"hisat2 wins over bwa", capability.Of(capability.Bwa, capability.Hisat2), capability.Hisat2},
		{"bwa wins over novoalign", capability.Of(capability.Novoalign, capability.Bwa), capability.Bwa},
		{"novoalign alone", capability.Of(capability.Novoalign), capability.Novoalign},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sc := newContext(t, false)

			out, err := PrimaryTransform().Apply(context.Background(), tc.caps, newLane(t, false), sc)

			require.NoError(t, err)
			assert.Equal(t, "run "+tc.want+"\n", extractRuns(out.Command()))
		})
	}
}

func TestPrimaryTransform_NoAlignerPassesThrough(t *testing.T) {
	t.Parallel()

	in := newLane(t, true)
	out, err := PrimaryTransform().Apply(context.Background(), capability.Of(capability.Picard), in, newContext(t, true))

	require.NoError(t, err)
	assert.Empty(t, out.Command())
	assert.Equal(t, in.Outputs(), out.Outputs())
}

func TestPrimaryTransform_SalmonRecordsExpressionOnly(t *testing.T) {
	t.Parallel()

	out, err := PrimaryTransform().Apply(context.Background(), capability.Of(capability.Salmon), newLane(t, true), newContext(t, true))

	require.NoError(t, err)
	_, ok := out.Output(artifact.PrimaryFile)
	assert.False(t, ok)
	quant, err := out.Require(artifact.ExpressionFile)
	require.NoError(t, err)
	assert.Equal(t, "/out/S1/expression/salmon/S1_1/quant.sf", quant)
}

func TestPostProcessing_PicardSupersedesSortedBam(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	sc := newContext(t, true)
	caps := capability.Of(capability.Bwa, capability.Picard)
	ctx := context.Background()
	aligned, err := PrimaryTransform().Apply(ctx, caps, newLane(t, true), sc)
	require.NoError(t, err)

	// --- Act ---
	out, err := PostProcessing().Apply(ctx, caps, aligned, sc)

	// --- Assert ---
	require.NoError(t, err)
	bam, err := out.Require(artifact.PrimaryFile)
	require.NoError(t, err)
	assert.Equal(t, "/out/S1/bam/S1_1.markdup.bam", bam)
	want := []string{
		"/out/S1/bam/S1_1.bwa.sorted.bam",
		"/out/S1/bam/S1_1.bwa.sorted.bam.bai",
	}
	if diff := cmp.Diff(want, out.Cleanup()); diff != "" {
		t.Errorf("cleanup mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "run bwa\nrun picard_markdup\n", extractRuns(out.Command()))
}

func TestPostProcessing_MissingMarkdupFails(t *testing.T) {
	t.Parallel()

	for _, tool := range []string{capability.Rmdup, capability.QC} {
		t.Run(tool, func(t *testing.T) {
			t.Parallel()
			sc := newContext(t, true)
			caps := capability.Of(capability.Bwa, tool)
			ctx := context.Background()
			aligned, err := PrimaryTransform().Apply(ctx, caps, newLane(t, true), sc)
			require.NoError(t, err)

			_, err = PostProcessing().Apply(ctx, caps, aligned, sc)

			require.Error(t, err)
			assert.True(t, errors.Is(err, artifact.ErrMissingOutput), err.Error())
			assert.Contains(t, err.Error(), "post-processing/"+tool)
		})
	}
}

func TestPostProcessing_FullChainKeepsOutputsMonotonic(t *testing.T) {
	t.Parallel()

	sc := newContext(t, true)
	caps := capability.Of(capability.Bwa, capability.Picard, capability.Rmdup, capability.QC, capability.AbraRealign)
	ctx := context.Background()
	aligned, err := PrimaryTransform().Apply(ctx, caps, newLane(t, true), sc)
	require.NoError(t, err)

	out, err := PostProcessing().Apply(ctx, caps, aligned, sc)

	require.NoError(t, err)
	for _, key := range aligned.Keys() {
		_, ok := out.Output(key)
		assert.True(t, ok, "output %q disappeared", key)
	}
	assert.Equal(t, "/out/S1/bam/S1_1.realign.bam", mustOutput(t, out, artifact.PrimaryFile))
	assert.Equal(t, "/out/S1/bam/S1_1.markdup.bam", mustOutput(t, out, MarkdupFile))
	assert.NotContains(t, out.Cleanup(), "/out/S1/bam/S1_1.markdup.bam")
	assert.Contains(t, out.Cleanup(), "/out/S1/bam/S1_1.rmdup.bam")
	assert.NotContains(t, out.Cleanup(), "/in/S1_R1.fastq.gz")
	assert.Equal(t, "run bwa\nrun picard_markdup\nrun rmdup\nrun qc\nrun abra_realign\n", extractRuns(out.Command()))
}

func TestPostProcessing_Mutect2SkipsRealignment(t *testing.T) {
	t.Parallel()

	sc := newContext(t, true)
	caps := capability.Of(capability.Picard, capability.GatkRealign, capability.Mutect2)

	got := PostProcessing().Steps(caps, sc)

	assert.Equal(t, []string{capability.Picard}, got)
}

func TestPreProcessing_SeqpurgeNeedsPairedEnd(t *testing.T) {
	t.Parallel()

	caps := capability.Of(capability.Seqpurge, capability.Trimmomatic)
	ctx := context.Background()

	paired, err := PreProcessing().Apply(ctx, caps, newLane(t, true), newContext(t, true))
	require.NoError(t, err)
	assert.Equal(t, "run seqpurge\n", extractRuns(paired.Command()))
	assert.Equal(t, "/out/S1/fastq/S1_1.seqpurge.R2.fastq.gz", mustOutput(t, paired, artifact.Fastq2))

	single, err := PreProcessing().Apply(ctx, caps, newLane(t, false), newContext(t, false))
	require.NoError(t, err)
	assert.Equal(t, "run trimmomatic\n", extractRuns(single.Command()))
	assert.Equal(t, "/out/S1/fastq/S1_1.trimmed.fastq.gz", mustOutput(t, single, artifact.Fastq1))
}

func TestPreProcessing_XenomeThenTrimCleansIntermediates(t *testing.T) {
	t.Parallel()

	caps := capability.Of(capability.Xenome, capability.Trimmomatic)

	out, err := PreProcessing().Apply(context.Background(), caps, newLane(t, true), newContext(t, true))

	require.NoError(t, err)
	assert.Contains(t, out.Cleanup(), "/out/S1/fastq/S1_1.xenome_human_1.fastq")
	assert.Contains(t, out.Cleanup(), "/out/S1/fastq/S1_1.xenome_mouse_2.fastq")
	assert.Contains(t, out.Cleanup(), "/out/S1/fastq/S1_1.unpaired.R1.fastq.gz")
	assert.NotContains(t, out.Cleanup(), "/in/S1_R1.fastq.gz")
}

func TestMergeLanes(t *testing.T) {
	t.Parallel()

	lane := func(t *testing.T, i int) artifact.Artifact {
		t.Helper()
		bam := filepath.Join("/out/S1/bam", fmt.Sprintf("S1_%d.bwa.sorted.bam", i))
		a, err := artifact.FromOutputs(map[string]string{artifact.PrimaryFile: bam, artifact.IndexFile: bam + ".bai"})
		require.NoError(t, err)
		return a
	}
	sc := newContext(t, true).ForLane(0)
	ctx := context.Background()

	t.Run("single lane is adopted", func(t *testing.T) {
		t.Parallel()
		out, err := MergeLanes([]artifact.Artifact{lane(t, 1)})(ctx, capability.Of(), artifact.New(), sc)
		require.NoError(t, err)
		assert.Empty(t, out.Command())
		assert.Equal(t, "/out/S1/bam/S1_1.bwa.sorted.bam", mustOutput(t, out, artifact.PrimaryFile))
	})

	t.Run("several lanes are merged", func(t *testing.T) {
		t.Parallel()
		out, err := MergeLanes([]artifact.Artifact{lane(t, 1), lane(t, 2)})(ctx, capability.Of(), artifact.New(), sc)
		require.NoError(t, err)
		assert.Equal(t, "/out/S1/bam/S1.merged.sorted.bam", mustOutput(t, out, artifact.PrimaryFile))
		assert.ElementsMatch(t, []string{
			"/out/S1/bam/S1_1.bwa.sorted.bam", "/out/S1/bam/S1_1.bwa.sorted.bam.bai",
			"/out/S1/bam/S1_2.bwa.sorted.bam", "/out/S1/bam/S1_2.bwa.sorted.bam.bai",
		}, out.Cleanup())
	})

	t.Run("lane without alignment fails", func(t *testing.T) {
		t.Parallel()
		_, err := MergeLanes([]artifact.Artifact{artifact.New()})(ctx, capability.Of(), artifact.New(), sc)
		assert.ErrorIs(t, err, artifact.ErrMissingOutput)
	})
}

func TestVariantCalling_SelectsByControl(t *testing.T) {
	t.Parallel()

	caps := capability.Of(capability.Vardict, capability.Mutect1, capability.Mutect2, capability.Freebayes, capability.GatkHaplotypeCaller)
	sc := newContext(t, true).ForLane(0)

	names := func(bs []Branch) []string {
		var out []string
		for _, b := range bs {
			out = append(out, b.Task)
		}
		return out
	}

	assert.Equal(t,
		[]string{capability.Vardict, capability.Mutect1, capability.GatkHaplotypeCaller, capability.Freebayes},
		names(VariantCalling().Select(caps, sc)))
	assert.Equal(t,
		[]string{capability.Vardict, capability.Mutect2},
		names(VariantCalling().Select(caps, sc.WithControl(&Control{Sample: "N1", Bam: "/out/N1/bam/N1.markdup.bam"}))))
}

func TestBranch_ApplyLeavesLaneUntouched(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	sc := newContext(t, true).ForLane(0)
	lane, err := artifact.FromOutputs(map[string]string{artifact.PrimaryFile: "/out/S1/bam/S1.markdup.bam"})
	require.NoError(t, err)
	branch := VariantCalling().Select(capability.Of(capability.Vardict), sc)[0]

	// --- Act ---
	side, err := branch.Apply(context.Background(), capability.Of(capability.Vardict), lane, sc)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/out/S1/mutation/vardict/S1.vardict.snpeff.vcf", mustOutput(t, side, artifact.VCF))
	assert.Equal(t, []string{"/out/S1/mutation/vardict/S1.vardict.vcf"}, side.Cleanup())
	assert.Equal(t, "run vardict\nrun snpeff\n", extractRuns(side.Command()))
	assert.Empty(t, lane.Command())
	_, ok := lane.Output(artifact.VCF)
	assert.False(t, ok)
}

func TestBranch_PairedNeedsControlAlignment(t *testing.T) {
	t.Parallel()

	sc := newContext(t, true).ForLane(0).WithControl(&Control{Sample: "N1"})
	lane, err := artifact.FromOutputs(map[string]string{artifact.PrimaryFile: "/out/S1/bam/S1.bam"})
	require.NoError(t, err)
	branch := VariantCalling().Select(capability.Of(capability.Mutect2), sc)[0]

	_, err = branch.Apply(context.Background(), capability.Of(capability.Mutect2), lane, sc)

	assert.ErrorIs(t, err, artifact.ErrMissingOutput)
}

func TestExpression_RequiresAlignment(t *testing.T) {
	t.Parallel()

	sc := newContext(t, true).ForLane(0)
	caps := capability.Of(capability.Rsem, capability.Stringtie)
	branches := Expression().Select(caps, sc)
	require.Len(t, branches, 2)

	_, err := branches[0].Apply(context.Background(), caps, artifact.New(), sc)
	assert.ErrorIs(t, err, artifact.ErrMissingOutput)

	lane, err := artifact.FromOutputs(map[string]string{artifact.PrimaryFile: "/out/S1/bam/S1.star.sorted.bam"})
	require.NoError(t, err)
	side, err := branches[1].Apply(context.Background(), caps, lane, sc)
	require.NoError(t, err)
	assert.Equal(t, "/out/S1/expression/stringtie/S1.stringtie.abundance.txt", mustOutput(t, side, artifact.ExpressionFile))
}

func TestCheckCompatibility(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckCompatibility(capability.Of(capability.Star, capability.Rsem)))
	assert.NoError(t, CheckCompatibility(capability.Of(capability.Hisat2, capability.Stringtie)))

	err := CheckCompatibility(capability.Of(capability.Hisat2, capability.Rsem))
	require.ErrorIs(t, err, ErrIncompatibleTools)
	assert.Contains(t, err.Error(), "HISAT2 is not compatible with RSEM")
}

func TestContext_ParamsPriority(t *testing.T) {
	t.Parallel()

	var got map[string]string
	sc := newContext(t, true).WithControl(&Control{Sample: "N1", Bam: "/n.bam"})
	sc.Params = map[string]string{"bwa.path": "/opt/bwa", "sample": "ignored"}
	sc.Renderer = render.Func(func(_ string, params map[string]string) (string, error) {
		got = params
		return "", nil
	})

	_, err := sc.Render("bwa", map[string]string{"output": "/o.bam"})

	require.NoError(t, err)
	assert.Equal(t, "/opt/bwa", got["bwa.path"])
	assert.Equal(t, "samtools", got["samtools.path"])
	assert.Equal(t, "S1", got["sample"])
	assert.Equal(t, "S1_1", got["lane"])
	assert.Equal(t, "4", got["threads"])
	assert.Equal(t, "true", got["paired"])
	assert.Equal(t, "/n.bam", got["control"])
	assert.Equal(t, "N1", got["control_sample"])
	assert.Equal(t, "/o.bam", got["output"])
	assert.Equal(t, "", got["database.genome"])
}

func TestStage_ErrorsCarryStageAndStep(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := Stage{Name: "custom", Defs: []Def{{
		Name: "explode",
		Run: func(context.Context, capability.Set, artifact.Artifact, *Context) (artifact.Artifact, error) {
			return artifact.New(), boom
		},
	}}}

	_, err := s.Apply(context.Background(), capability.Of(), artifact.New(), newContext(t, false))

	require.ErrorIs(t, err, boom)
	assert.Equal(t, "custom/explode: boom", err.Error())
}

// extractRuns keeps only the rendered "run <template>" lines of a command.
func extractRuns(command string) string {
	var b strings.Builder
	for _, line := range strings.Split(command, "\n") {
		if strings.HasPrefix(line, "run ") {
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func mustOutput(t *testing.T, a artifact.Artifact, key string) string {
	t.Helper()
	v, err := a.Require(key)
	require.NoError(t, err)
	return v
}
