package config

import (
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
)

// Read types.
const (
	ReadPaired = "paired"
	ReadSingle = "single"
)

// Sample types. A case sample may name a control to be analysed against.
const (
	SampleCase    = "case"
	SampleControl = "control"
)

// BamWorkflowSuffix ends the name of every workflow that starts from an
// aligned BAM instead of fastq lanes.
const BamWorkflowSuffix = "_Bam"

// DefaultStatusCheckPeriod is how often generated waits poll upstream logs.
const DefaultStatusCheckPeriod = 60 * time.Second

// Model is the unified, format-agnostic representation of one run.
type Model struct {
	Pipeline Pipeline
	Queue    Queue
	Sync     Sync
	// Tools maps a tool name to its attributes, e.g. Tools["bwa"]["path"].
	Tools map[string]map[string]string
	// Database holds reference files such as genome and bed.
	Database map[string]string
	// Templates replaces or extends the built-in command templates.
	Templates map[string]hcl.Expression
	Study     Study
}

// Pipeline selects the workflow and the tools it runs.
type Pipeline struct {
	Workflow string
	Toolset  []string
	// Switches turns individual capabilities on or off on top of Toolset.
	Switches map[string]bool
	ReadType string
}

// Queue holds the batch resource requests and the submission command.
type Queue struct {
	NumThreads    int
	PE            string
	Queue         string
	MaxMemory     string
	SubmitCommand []string
}

// Sync configures generated waits.
type Sync struct {
	StatusCheckPeriod time.Duration
}

// Study is the set of samples of a run and where results go.
type Study struct {
	Outdir  string
	Samples []*Sample
}

// Sample is one biological sample and its fastq lanes, or its aligned BAM
// for the BAM workflows.
type Sample struct {
	Name string
	Type string
	// Control names the matched control sample of a case.
	Control string
	Fastq1  []string
	Fastq2  []string
	Bam     string
}

// IsControl reports whether s only serves as a control.
func (s *Sample) IsControl() bool {
	return s.Type == SampleControl
}

// Lanes returns the number of fastq lanes of s.
func (s *Sample) Lanes() int {
	return len(s.Fastq1)
}

// New returns an empty Model with defaults applied.
func New() *Model {
	return &Model{
		Pipeline:  Pipeline{ReadType: ReadPaired, Switches: map[string]bool{}},
		Queue:     Queue{NumThreads: 1},
		Sync:      Sync{StatusCheckPeriod: DefaultStatusCheckPeriod},
		Tools:     map[string]map[string]string{},
		Database:  map[string]string{},
		Templates: map[string]hcl.Expression{},
	}
}

// BamInput reports whether the selected workflow reads aligned BAMs.
func (p Pipeline) BamInput() bool {
	return strings.HasSuffix(p.Workflow, BamWorkflowSuffix)
}

// PairedEnd reports whether every sample has paired reads.
func (m *Model) PairedEnd() bool {
	return m.Pipeline.ReadType == ReadPaired
}

// Sample returns the sample called name, or nil.
func (m *Model) Sample(name string) *Sample {
	for _, s := range m.Study.Samples {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Params flattens tool and database attributes into "tool.attr" and
// "database.key" pairs for the command renderer.
func (m *Model) Params() map[string]string {
	out := make(map[string]string)
	for tool, attrs := range m.Tools {
		for k, v := range attrs {
			out[tool+"."+k] = v
		}
	}
	for k, v := range m.Database {
		out["database."+k] = v
	}
	return out
}

// SampleNames returns the sample names in declared order.
func (m *Model) SampleNames() []string {
	names := make([]string, 0, len(m.Study.Samples))
	for _, s := range m.Study.Samples {
		names = append(names, s.Name)
	}
	return names
}

// ToolNames returns the configured tool blocks in lexical order.
func (m *Model) ToolNames() []string {
	names := make([]string, 0, len(m.Tools))
	for name := range m.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
