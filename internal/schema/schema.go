// Package schema holds the HCL decoding structs of run configuration files.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Pipeline represents the `pipeline` block.
type Pipeline struct {
	Workflow string   `hcl:"workflow"`
	Toolset  []string `hcl:"toolset,optional"`
	ReadType string   `hcl:"read_type,optional"`
	// Switches is an object of capability names to booleans.
	Switches hcl.Expression `hcl:"switches,optional"`
}

// Queue represents the `queue` block.
type Queue struct {
	NumThreads    *int     `hcl:"num_threads,optional"`
	PE            string   `hcl:"pe,optional"`
	Queue         string   `hcl:"queue,optional"`
	MaxMemory     string   `hcl:"max_memory,optional"`
	SubmitCommand []string `hcl:"submit_command,optional"`
}

// Sync represents the `sync` block.
type Sync struct {
	// StatusCheckPeriod is in seconds.
	StatusCheckPeriod *int `hcl:"status_check_period,optional"`
}

// Tool represents a `tool "<name>"` block. Its attributes are free-form and
// only consumed by command templates.
type Tool struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// Database represents the `database` block of reference files.
type Database struct {
	Body hcl.Body `hcl:",remain"`
}

// Template represents a `template "<name>"` block.
type Template struct {
	Name    string         `hcl:"name,label"`
	Command hcl.Expression `hcl:"command"`
}

// Study represents the `study` block.
type Study struct {
	Outdir string `hcl:"outdir"`
}

// Sample represents a `sample "<name>"` block.
type Sample struct {
	Name    string   `hcl:"name,label"`
	Type    string   `hcl:"type,optional"`
	Control string   `hcl:"control,optional"`
	Fastq1  []string `hcl:"fastq1,optional"`
	Fastq2  []string `hcl:"fastq2,optional"`
	// Bam is an aligned input for the BAM workflows.
	Bam string `hcl:"bam,optional"`
}

// File represents every top-level block a configuration file may hold. A run
// may split its blocks across several files.
type File struct {
	Pipeline  *Pipeline   `hcl:"pipeline,block"`
	Queue     *Queue      `hcl:"queue,block"`
	Sync      *Sync       `hcl:"sync,block"`
	Tools     []*Tool     `hcl:"tool,block"`
	Database  *Database   `hcl:"database,block"`
	Templates []*Template `hcl:"template,block"`
	Study     *Study      `hcl:"study,block"`
	Samples   []*Sample   `hcl:"sample,block"`
	Body      hcl.Body    `hcl:",remain"`
}
