package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/genoflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineHCL = `
pipeline {
  workflow  = "DnaVar_Fastq"
  toolset   = ["bwa", "picard", " "]
  read_type = "paired"
  switches  = {
    mutect2 = true
    vardict = false
  }
}

queue {
  num_threads    = 8
  pe             = "smp"
  queue          = "all.q"
  max_memory     = "16G"
  submit_command = ["qsub", "-terse"]
}

sync {
  status_check_period = 5
}
`

const toolsHCL = `
tool "bwa" {
  path    = "/opt/bwa"
  options = ["-M", "-k", 19]
  threads = 4
}

database {
  genome = "/ref/hg19.fa"
}

template "bwa" {
  command = "custom bwa ${sample}"
}
`

const studyHCL = `
study {
  outdir = "/data/run"
}

sample "T1" {
  control = "N1"
  fastq1  = ["/in/T1_R1.fq.gz"]
  fastq2  = ["/in/T1_R2.fq.gz"]
}

sample "N1" {
  type   = "control"
  fastq1 = ["/in/N1_R1.fq.gz"]
  fastq2 = ["/in/N1_R2.fq.gz"]
}
`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestLoader_Load_MergesDirectory(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"pipeline.hcl":    pipelineHCL,
		"tools/tools.hcl": toolsHCL,
		"study/study.hcl": studyHCL,
		"study/README.md": "not config",
	})

	// --- Act ---
	model, err := NewLoader().Load(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "DnaVar_Fastq", model.Pipeline.Workflow)
	assert.Equal(t, []string{"bwa", "picard"}, model.Pipeline.Toolset)
	assert.Equal(t, map[string]bool{"mutect2": true, "vardict": false}, model.Pipeline.Switches)
	assert.True(t, model.PairedEnd())

	assert.Equal(t, 8, model.Queue.NumThreads)
	assert.Equal(t, "smp", model.Queue.PE)
	assert.Equal(t, []string{"qsub", "-terse"}, model.Queue.SubmitCommand)
	assert.Equal(t, 5*time.Second, model.Sync.StatusCheckPeriod)

	assert.Equal(t, map[string]string{
		"path":    "/opt/bwa",
		"options": "-M -k 19",
		"threads": "4",
	}, model.Tools["bwa"])
	assert.Equal(t, "/ref/hg19.fa", model.Database["genome"])
	assert.Contains(t, model.Templates, "bwa")

	assert.Equal(t, "/data/run", model.Study.Outdir)
	require.Len(t, model.Study.Samples, 2)
	assert.Equal(t, config.SampleCase, model.Sample("T1").Type)
	assert.Equal(t, "N1", model.Sample("T1").Control)
	assert.True(t, model.Sample("N1").IsControl())
}

func TestLoader_Load_DefaultsWhenBlocksAreOmitted(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"run.hcl": `
pipeline {
  workflow = "RnaExpression_Fastq"
  toolset  = ["star"]
}
` + studyHCL,
	})

	// --- Act ---
	model, err := NewLoader().Load(context.Background(), filepath.Join(dir, "run.hcl"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, config.ReadPaired, model.Pipeline.ReadType)
	assert.Empty(t, model.Pipeline.Switches)
	assert.Equal(t, 1, model.Queue.NumThreads)
	assert.Equal(t, config.DefaultStatusCheckPeriod, model.Sync.StatusCheckPeriod)
}

func TestLoader_Load_BamSamples(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"run.hcl": `
pipeline {
  workflow = "DnaVar_Bam"
  toolset  = ["vardict"]
}

study {
  outdir = "/data/run"
}

sample "T1" {
  bam = "/in/T1.bam"
}
`,
	})

	// --- Act ---
	model, err := NewLoader().Load(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)
	require.NotNil(t, model.Sample("T1"))
	assert.Equal(t, "/in/T1.bam", model.Sample("T1").Bam)
	assert.Empty(t, model.Sample("T1").Fastq1)
	assert.True(t, model.Pipeline.BamInput())
}

func TestLoader_Load_SamePathTwiceIsReadOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"run.hcl": pipelineHCL + studyHCL})
	file := filepath.Join(dir, "run.hcl")

	model, err := NewLoader().Load(context.Background(), file, dir)

	require.NoError(t, err)
	assert.Len(t, model.Study.Samples, 2)
}

func TestLoader_Load_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "duplicate pipeline block",
			files: map[string]string{"a.hcl": pipelineHCL + studyHCL, "b.hcl": pipelineHCL},
			want:  `duplicate "pipeline" block`,
		},
		{
			name:  "duplicate tool",
			files: map[string]string{"a.hcl": pipelineHCL + studyHCL + toolsHCL, "b.hcl": `tool "bwa" {}`},
			want:  `duplicate tool "bwa"`,
		},
		{
			name:  "syntax error",
			files: map[string]string{"a.hcl": `pipeline {`},
			want:  "failed to parse HCL file",
		},
		{
			name:  "unknown attribute",
			files: map[string]string{"a.hcl": `pipeline { flow = "x" }`},
			want:  "failed to decode HCL file",
		},
		{
			name: "switches of wrong type",
			files: map[string]string{"a.hcl": `
pipeline {
  workflow = "DnaVar_Fastq"
  switches = ["bwa"]
}` + studyHCL},
			want: "switches",
		},
		{
			name:  "invalid model",
			files: map[string]string{"a.hcl": `pipeline { workflow = "DnaVar_Fastq" }`},
			want:  "toolset is empty",
		},
		{
			name:  "no hcl files",
			files: map[string]string{"notes.txt": "hello"},
			want:  "no .hcl files found",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeFiles(t, dir, tc.files)

			_, err := NewLoader().Load(context.Background(), dir)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoader_Load_BadPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"notes.txt": "hello"})

	_, err := NewLoader().Load(context.Background(), filepath.Join(dir, "missing.hcl"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewLoader().Load(context.Background(), filepath.Join(dir, "notes.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not an .hcl file")
}
