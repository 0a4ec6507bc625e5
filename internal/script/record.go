// Package script serializes artifacts into submittable shell scripts and
// dispatches them according to a submission mode.
package script

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/genoflow/internal/fsutil"
)

// Phase is the pipeline phase a script belongs to.
type Phase string

const (
	PhaseAlignment     Phase = "alignment"
	PhasePostAlignment Phase = "post-alignment"
	PhaseSecondary     Phase = "secondary"
	PhasePostProcess   Phase = "post-process"
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhaseAlignment, PhasePostAlignment, PhaseSecondary, PhasePostProcess}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Record is one assembled script.
type Record struct {
	Sample string
	Phase  Phase
	Task   string
	// Index is the fastq lane the script covers, or 0 for sample-level work.
	Index   int
	Path    string
	LogPath string
	// OutPath receives the job's stdout and stderr.
	OutPath string
	Text    string
	// Marker is the success line the script appends to LogPath.
	Marker string
	// Waits lists the completion logs the script polls before its own work.
	Waits []string
	// Chained marks a script started by another script's launch line.
	Chained bool
}

// Naming derives deterministic script and log paths.
type Naming struct {
	ShDir    string
	LogDir   string
	Workflow string
}

// NewNaming places scripts and logs in the run directories of layout.
func NewNaming(layout fsutil.Layout, workflow string) Naming {
	return Naming{ShDir: layout.ShDir(), LogDir: layout.LogDir(), Workflow: workflow}
}

// BaseName returns "{workflow}_{task}_for_{sample}[_{index}]_analysis".
func (n Naming) BaseName(task, sample string, index int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s_%s_for_%s", n.Workflow, task, sample)
	if index > 0 {
		fmt.Fprintf(&b, "_%d", index)
	}
	b.WriteString("_analysis")
	return b.String()
}

// ScriptPath is where the script of task for sample is written.
func (n Naming) ScriptPath(task, sample string, index int) string {
	return filepath.Join(n.ShDir, n.BaseName(task, sample, index)+".sh")
}

// LogPath is the completion log of task for sample.
func (n Naming) LogPath(task, sample string, index int) string {
	return filepath.Join(n.LogDir, n.BaseName(task, sample, index)+".log")
}

// OutPath collects the job output of task for sample.
func (n Naming) OutPath(task, sample string, index int) string {
	return filepath.Join(n.LogDir, n.BaseName(task, sample, index)+".out")
}
