package manager

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/genoflow/internal/fsutil"
	"github.com/specialistvlad/genoflow/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// recordingSubmitter remembers what it was asked to submit.
type recordingSubmitter struct {
	mu   sync.Mutex
	recs []*script.Record
}

func (*recordingSubmitter) Mode() script.Mode                { return script.ModeQueue }
func (*recordingSubmitter) LaunchLine(*script.Record) string { return "" }
func (s *recordingSubmitter) Submit(_ context.Context, rec *script.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func record(dir, sample string, phase script.Phase, task string, index int, waits ...string) *script.Record {
	naming := script.Naming{ShDir: filepath.Join(dir, "sh_files"), LogDir: filepath.Join(dir, "log_files"), Workflow: "DnaVar_Fastq"}
	return &script.Record{
		Sample:  sample,
		Phase:   phase,
		Task:    task,
		Index:   index,
		Path:    naming.ScriptPath(task, sample, index),
		LogPath: naming.LogPath(task, sample, index),
		OutPath: naming.OutPath(task, sample, index),
		Marker:  task,
		Waits:   waits,
	}
}

func TestManager_ConcurrentAdd(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m := New(nil)
	const samples, perSample = 8, 25

	// --- Act ---
	var wg sync.WaitGroup
	for s := 0; s < samples; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			name := fmt.Sprintf("S%d", s)
			for i := 1; i <= perSample; i++ {
				assert.NoError(t, m.Submit(context.Background(), record("/run", name, script.PhaseAlignment, "alignment", i)))
			}
		}(s)
	}
	wg.Wait()

	// --- Assert ---
	assert.Equal(t, samples*perSample, m.Len())
	assert.Len(t, m.Samples(), samples)
	for _, name := range m.Samples() {
		recs := m.Scripts(name, script.PhaseAlignment)
		require.Len(t, recs, perSample)
		for i, rec := range recs {
			assert.Equal(t, i+1, rec.Index, "insertion order is kept per sample")
		}
	}
}

func TestManager_SubmitterContract(t *testing.T) {
	t.Parallel()

	m := New(nil)
	rec := record("/run", "S1", script.PhaseSecondary, "vardict", 0)

	assert.Equal(t, script.ModeDeferred, m.Mode())
	assert.Empty(t, m.LaunchLine(rec))
	assert.Equal(t, script.ModeTest, m.Base().Mode())
}

func TestManager_SamplesPutCohortLast(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.Add(record("/run", fsutil.CohortSample, script.PhasePostProcess, "mergeMutation", 0))
	m.Add(record("/run", "S2", script.PhaseAlignment, "alignment", 1))
	m.Add(record("/run", "S1", script.PhaseAlignment, "alignment", 1))

	assert.Equal(t, []string{"S1", "S2", fsutil.CohortSample}, m.Samples())
	assert.Empty(t, m.Scripts("S3", script.PhaseAlignment))
}

func TestBuildMaster_NothingCollected(t *testing.T) {
	t.Parallel()

	_, err := New(nil).BuildMaster(context.Background(), Options{ShDir: t.TempDir()})

	assert.ErrorIs(t, err, ErrNothingCollected)
}

func TestBuildMaster_ManifestEdges(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	m := New(nil)
	lane1 := record(dir, "S1", script.PhaseAlignment, "alignment", 1)
	lane2 := record(dir, "S1", script.PhaseAlignment, "alignment", 2)
	post := record(dir, "S1", script.PhasePostAlignment, "postalignment", 0, lane1.LogPath, lane2.LogPath)
	control := record(dir, "N1", script.PhasePostAlignment, "postalignment", 0)
	caller := record(dir, "S1", script.PhaseSecondary, "mutect2", 0, post.LogPath, control.LogPath)
	cohort := record(dir, fsutil.CohortSample, script.PhasePostProcess, "mergeMutation", 0, caller.LogPath)
	for _, r := range []*script.Record{caller, cohort, lane1, lane2, post, control} {
		m.Add(r)
	}

	// --- Act ---
	master, err := m.BuildMaster(context.Background(), Options{
		ShDir:    filepath.Join(dir, "sh_files"),
		LogDir:   filepath.Join(dir, "log_files"),
		Workflow: "DnaVar_Fastq",
		RunID:    "run-1",
	})

	// --- Assert ---
	require.NoError(t, err)
	data, err := os.ReadFile(master.ManifestPath)
	require.NoError(t, err)
	var got Manifest
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, master.Manifest, got)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, []string{"N1", "S1"}, got.Samples)

	deps := make(map[string][]string)
	for _, j := range got.Jobs {
		deps[j.ID] = j.DependsOn
	}
	want := map[string][]string{
		"DnaVar_Fastq_postalignment_for_N1_analysis": nil,
		"DnaVar_Fastq_alignment_for_S1_1_analysis":   nil,
		"DnaVar_Fastq_alignment_for_S1_2_analysis":   nil,
		"DnaVar_Fastq_postalignment_for_S1_analysis": {
			"DnaVar_Fastq_alignment_for_S1_1_analysis",
			"DnaVar_Fastq_alignment_for_S1_2_analysis",
		},
		"DnaVar_Fastq_mutect2_for_S1_analysis": {
			"DnaVar_Fastq_postalignment_for_N1_analysis",
			"DnaVar_Fastq_postalignment_for_S1_analysis",
		},
		"DnaVar_Fastq_mergeMutation_for_cohort_analysis": {
			"DnaVar_Fastq_mutect2_for_S1_analysis",
		},
	}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("dependency mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildMaster_RunsPhasesInOrder(t *testing.T) {
	t.Parallel()

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh is not available")
	}

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sh_files"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "log_files"), 0o755))
	trace := filepath.Join(dir, "trace.txt")
	m := New(nil)
	recs := []*script.Record{
		record(dir, "S1", script.PhaseSecondary, "vardict", 0),
		record(dir, "S1", script.PhaseAlignment, "alignment", 1),
		record(dir, "S1", script.PhaseAlignment, "alignment", 2),
		record(dir, "S1", script.PhasePostAlignment, "postalignment", 0),
		record(dir, "S2", script.PhaseAlignment, "alignment", 0),
		record(dir, fsutil.CohortSample, script.PhasePostProcess, "mergeMutation", 0),
	}
	for _, r := range recs {
		body := fmt.Sprintf("#!/bin/sh\necho '%s %s %d' >> '%s'\n", r.Sample, r.Task, r.Index, trace)
		require.NoError(t, os.WriteFile(r.Path, []byte(body), 0o755))
		m.Add(r)
	}
	sub := &recordingSubmitter{}
	m.base = sub

	// --- Act ---
	master, err := m.BuildMaster(context.Background(), Options{
		ShDir:  filepath.Join(dir, "sh_files"),
		LogDir: filepath.Join(dir, "log_files"),
	})
	require.NoError(t, err)
	require.NoError(t, m.Dispatch(context.Background(), master))
	out, runErr := exec.Command(sh, master.Record.Path).CombinedOutput()

	// --- Assert ---
	require.NoError(t, runErr, string(out))
	require.Len(t, sub.recs, 1)
	assert.Equal(t, master.Record, sub.recs[0])

	content, err := os.ReadFile(trace)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, len(recs))
	pos := make(map[string]int)
	for i, l := range lines {
		pos[l] = i
	}
	assert.Less(t, pos["S1 alignment 1"], pos["S1 postalignment 0"])
	assert.Less(t, pos["S1 alignment 2"], pos["S1 postalignment 0"])
	assert.Less(t, pos["S1 postalignment 0"], pos["S1 vardict 0"])
	assert.Equal(t, len(lines)-1, pos["cohort mergeMutation 0"])

	log, err := os.ReadFile(master.Record.LogPath)
	require.NoError(t, err)
	assert.Equal(t, "master\n", string(log))
}

func TestBuildMaster_ClearsLogsBeforeStarting(t *testing.T) {
	t.Parallel()

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh is not available")
	}

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sh_files"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "log_files"), 0o755))
	m := New(nil)
	lane := record(dir, "S1", script.PhaseAlignment, "alignment", 1)
	caller := record(dir, "S1", script.PhaseSecondary, "vardict", 0)
	for _, r := range []*script.Record{lane, caller} {
		require.NoError(t, os.WriteFile(r.Path, []byte("#!/bin/sh\n"), 0o755))
		require.NoError(t, os.WriteFile(r.LogPath, []byte(r.Marker+"\n"), 0o644))
		m.Add(r)
	}

	// --- Act ---
	master, err := m.BuildMaster(context.Background(), Options{
		ShDir:    filepath.Join(dir, "sh_files"),
		LogDir:   filepath.Join(dir, "log_files"),
		Workflow: "DnaVar_Fastq",
	})
	require.NoError(t, err)
	out, runErr := exec.Command(sh, master.Record.Path).CombinedOutput()

	// --- Assert ---
	require.NoError(t, runErr, string(out))
	assert.NoFileExists(t, lane.LogPath)
	assert.NoFileExists(t, caller.LogPath)
	assert.Contains(t, master.Record.Text, "# S1\n(\n\tsh '"+lane.Path+"' >> '"+lane.OutPath+"' 2>&1\n\tsh '"+caller.Path+"'")
	assert.True(t, strings.HasSuffix(master.Record.Text, "wait\necho 'master' >> \"$LOGFILE\"\n"+script.FinishLine+"\n"))
}
