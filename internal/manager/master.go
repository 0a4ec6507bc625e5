package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/fsutil"
	"github.com/specialistvlad/genoflow/internal/render"
	"github.com/specialistvlad/genoflow/internal/script"
	"github.com/specialistvlad/genoflow/internal/syncpoll"
	"gopkg.in/yaml.v3"
)

// ErrNothingCollected is returned when a master script is requested before
// any script was collected.
var ErrNothingCollected = errors.New("no scripts collected")

const (
	masterTask   = "master"
	masterScript = "master.sh"
	manifestFile = "master_manifest.yaml"
)

// Options locate and stamp the master script.
type Options struct {
	ShDir    string
	LogDir   string
	Workflow string
	RunID    string
}

// Manifest describes every collected job and the jobs it depends on.
type Manifest struct {
	RunID    string   `yaml:"run_id,omitempty"`
	Workflow string   `yaml:"workflow"`
	Samples  []string `yaml:"samples"`
	Jobs     []Job    `yaml:"jobs"`
}

// Job is one collected script.
type Job struct {
	ID        string   `yaml:"id"`
	Sample    string   `yaml:"sample"`
	Phase     string   `yaml:"phase"`
	Task      string   `yaml:"task"`
	Index     int      `yaml:"index,omitempty"`
	Script    string   `yaml:"script"`
	Log       string   `yaml:"log"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// Master is the result of BuildMaster.
type Master struct {
	Record       *script.Record
	ManifestPath string
	Manifest     Manifest
}

// BuildMaster writes the master script and its manifest. Samples run
// concurrently; within a sample phases run in order, with several scripts of
// one phase started together. Post-process scripts run once every sample is
// done.
func (m *Manager) BuildMaster(ctx context.Context, opts Options) (*Master, error) {
	logger := ctxlog.FromContext(ctx)
	samples := m.Samples()
	if len(samples) == 0 {
		return nil, ErrNothingCollected
	}

	manifest := m.manifest(opts, samples)
	rec := &script.Record{
		Sample:  masterTask,
		Phase:   script.PhasePostProcess,
		Task:    masterTask,
		Path:    filepath.Join(opts.ShDir, masterScript),
		LogPath: filepath.Join(opts.LogDir, masterTask+".log"),
		OutPath: filepath.Join(opts.LogDir, masterTask+".out"),
		Marker:  masterTask,
	}
	text, err := m.masterText(opts, rec, samples)
	if err != nil {
		return nil, err
	}
	rec.Text = text

	if err := os.MkdirAll(opts.ShDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", opts.ShDir, err)
	}
	if err := os.WriteFile(rec.Path, []byte(rec.Text), 0o755); err != nil {
		return nil, fmt.Errorf("failed to write master script: %w", err)
	}
	if err := os.Chmod(rec.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to make master script executable: %w", err)
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	manifestPath := filepath.Join(opts.ShDir, manifestFile)
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	logger.Info("Wrote master script.", "path", rec.Path, "jobs", len(manifest.Jobs), "samples", len(samples))
	return &Master{Record: rec, ManifestPath: manifestPath, Manifest: manifest}, nil
}

// Dispatch hands the master script to the base submitter.
func (m *Manager) Dispatch(ctx context.Context, master *Master) error {
	if err := m.base.Submit(ctx, master.Record); err != nil {
		return fmt.Errorf("failed to submit master script: %w", err)
	}
	return nil
}

type masterVars struct {
	RunID     string        `cty:"run_id"`
	Workflow  string        `cty:"workflow"`
	LogPath   string        `cty:"log_path"`
	ClearLogs []string      `cty:"clear_logs"`
	Groups    []masterGroup `cty:"groups"`
	Post      []string      `cty:"post"`
	Success   string        `cty:"success"`
	Finish    string        `cty:"finish"`
}

type masterGroup struct {
	Sample string   `cty:"sample"`
	Lines  []string `cty:"lines"`
}

// masterText clears the completion log of every collected script before
// starting any of them, so no wait matches a previous run.
func (m *Manager) masterText(opts Options, rec *script.Record, samples []string) (string, error) {
	success, err := syncpoll.New().RenderSuccess(rec.Marker)
	if err != nil {
		return "", err
	}
	vars := masterVars{
		RunID:     opts.RunID,
		Workflow:  opts.Workflow,
		LogPath:   rec.LogPath,
		ClearLogs: []string{rec.LogPath},
		Groups:    []masterGroup{},
		Post:      []string{},
		Success:   success,
		Finish:    script.FinishLine,
	}
	for _, sample := range samples {
		var lines []string
		for _, phase := range script.Phases {
			for _, r := range m.Scripts(sample, phase) {
				vars.ClearLogs = append(vars.ClearLogs, r.LogPath)
			}
		}
		for _, phase := range script.Phases[:3] {
			lines = append(lines, groupLines(m.Scripts(sample, phase), "\t")...)
		}
		if len(lines) > 0 {
			vars.Groups = append(vars.Groups, masterGroup{Sample: sample, Lines: lines})
		}
		for _, r := range m.Scripts(sample, script.PhasePostProcess) {
			vars.Post = append(vars.Post, runLine(r))
		}
	}
	return render.Shell().Execute("master", vars)
}

// groupLines runs a single script in the foreground and several in parallel.
func groupLines(recs []*script.Record, indent string) []string {
	switch len(recs) {
	case 0:
		return nil
	case 1:
		return []string{indent + runLine(recs[0])}
	}
	lines := make([]string, 0, len(recs)+1)
	for _, r := range recs {
		lines = append(lines, indent+runLine(r)+" &")
	}
	return append(lines, indent+"wait")
}

func runLine(r *script.Record) string {
	return fmt.Sprintf("sh %s >> %s 2>&1", syncpoll.Quote(r.Path), syncpoll.Quote(r.OutPath))
}

// manifest derives dependency edges from the logs each script polls and from
// phase order within a sample.
func (m *Manager) manifest(opts Options, samples []string) Manifest {
	byLog := make(map[string]string)
	var all []*script.Record
	for _, sample := range samples {
		for _, phase := range script.Phases {
			for _, r := range m.Scripts(sample, phase) {
				byLog[r.LogPath] = jobID(r)
				all = append(all, r)
			}
		}
	}

	out := Manifest{RunID: opts.RunID, Workflow: opts.Workflow}
	for _, s := range samples {
		if s != fsutil.CohortSample {
			out.Samples = append(out.Samples, s)
		}
	}
	for _, r := range all {
		deps := make(map[string]struct{})
		for _, log := range r.Waits {
			if id, ok := byLog[log]; ok {
				deps[id] = struct{}{}
			}
		}
		for _, prev := range m.previousPhase(r) {
			deps[jobID(prev)] = struct{}{}
		}
		job := Job{
			ID:     jobID(r),
			Sample: r.Sample,
			Phase:  string(r.Phase),
			Task:   r.Task,
			Index:  r.Index,
			Script: r.Path,
			Log:    r.LogPath,
		}
		for id := range deps {
			job.DependsOn = append(job.DependsOn, id)
		}
		sort.Strings(job.DependsOn)
		out.Jobs = append(out.Jobs, job)
	}
	return out
}

// previousPhase returns the scripts of the closest earlier non-empty phase of
// the same sample.
func (m *Manager) previousPhase(r *script.Record) []*script.Record {
	idx := -1
	for i, p := range script.Phases {
		if p == r.Phase {
			idx = i
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if recs := m.Scripts(r.Sample, script.Phases[i]); len(recs) > 0 {
			return recs
		}
	}
	return nil
}

func jobID(r *script.Record) string {
	return strings.TrimSuffix(filepath.Base(r.Path), ".sh")
}
