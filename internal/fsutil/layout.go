package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// CohortSample is the sample name used for cohort-level scripts.
const CohortSample = "cohort"

// Layout resolves every directory a run writes to from one output root.
type Layout struct {
	Root string
}

// SampleDirs are the per-sample output directories.
type SampleDirs struct {
	Root       string
	Fastq      string
	Bam        string
	QC         string
	Tmp        string
	Mutation   string
	Expression string
}

// NewLayout returns a Layout rooted at an absolute form of root.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve output directory %s: %w", root, err)
	}
	return Layout{Root: abs}, nil
}

// ShDir holds generated scripts.
func (l Layout) ShDir() string { return filepath.Join(l.Root, "sh_files") }

// LogDir holds completion logs and job output.
func (l Layout) LogDir() string { return filepath.Join(l.Root, "log_files") }

// Sample returns the directories of one sample.
func (l Layout) Sample(name string) SampleDirs {
	root := filepath.Join(l.Root, name)
	return SampleDirs{
		Root:       root,
		Fastq:      filepath.Join(root, "fastq"),
		Bam:        filepath.Join(root, "bam"),
		QC:         filepath.Join(root, "qc"),
		Tmp:        filepath.Join(root, "tmp"),
		Mutation:   filepath.Join(root, "mutation"),
		Expression: filepath.Join(root, "expression"),
	}
}

// Cohort returns the directories used by cohort-level post-processing.
func (l Layout) Cohort() SampleDirs {
	return l.Sample(CohortSample)
}

// Ensure creates the run directories and the directories of every sample.
func (l Layout) Ensure(samples ...string) error {
	dirs := []string{l.Root, l.ShDir(), l.LogDir()}
	all := append(append([]string{}, samples...), CohortSample)
	for _, s := range all {
		d := l.Sample(s)
		dirs = append(dirs, d.Root, d.Fastq, d.Bam, d.QC, d.Tmp, d.Mutation, d.Expression)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}
