package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/genoflow/internal/fsutil"
)

// ReservedSampleName is used by cohort-level scripts and cannot name a
// sample.
const ReservedSampleName = fsutil.CohortSample

// ErrInvalidConfig is returned when a loaded Model fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate reports every problem of m at once.
func (m *Model) Validate() error {
	var errs []error
	if m.Pipeline.Workflow == "" {
		errs = append(errs, errors.New("pipeline: workflow is required"))
	}
	if len(m.Pipeline.Toolset) == 0 && !anyEnabled(m.Pipeline.Switches) {
		errs = append(errs, errors.New("pipeline: toolset is empty"))
	}
	switch m.Pipeline.ReadType {
	case ReadPaired, ReadSingle:
	default:
		errs = append(errs, fmt.Errorf("pipeline: unknown read_type %q (want %s or %s)", m.Pipeline.ReadType, ReadPaired, ReadSingle))
	}
	if m.Queue.NumThreads < 1 {
		errs = append(errs, fmt.Errorf("queue: num_threads must be positive, got %d", m.Queue.NumThreads))
	}
	if m.Sync.StatusCheckPeriod <= 0 {
		errs = append(errs, fmt.Errorf("sync: status_check_period must be positive, got %s", m.Sync.StatusCheckPeriod))
	}
	if m.Study.Outdir == "" {
		errs = append(errs, errors.New("study: outdir is required"))
	}
	if len(m.Study.Samples) == 0 {
		errs = append(errs, errors.New("study: no samples"))
	}
	errs = append(errs, m.validateSamples()...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (m *Model) validateSamples() []error {
	var errs []error
	seen := make(map[string]bool)
	for _, s := range m.Study.Samples {
		switch {
		case s.Name == "":
			errs = append(errs, errors.New("sample: name is required"))
			continue
		case strings.ContainsAny(s.Name, "/|' \t\n"):
			errs = append(errs, fmt.Errorf("sample %q: name must not contain '/', '|', quotes or whitespace", s.Name))
		case s.Name == ReservedSampleName:
			errs = append(errs, fmt.Errorf("sample %q: name is reserved for cohort scripts", s.Name))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("sample %q: declared twice", s.Name))
		}
		seen[s.Name] = true

		switch s.Type {
		case SampleCase, SampleControl:
		default:
			errs = append(errs, fmt.Errorf("sample %q: unknown type %q", s.Name, s.Type))
		}
		if m.Pipeline.BamInput() {
			errs = append(errs, m.validateBamInput(s)...)
		} else {
			errs = append(errs, m.validateFastqInput(s)...)
		}
	}

	for _, s := range m.Study.Samples {
		if s.Control == "" {
			continue
		}
		control := m.Sample(s.Control)
		switch {
		case s.Control == s.Name:
			errs = append(errs, fmt.Errorf("sample %q: cannot be its own control", s.Name))
		case control == nil:
			errs = append(errs, fmt.Errorf("sample %q: unknown control %q", s.Name, s.Control))
		case !control.IsControl():
			errs = append(errs, fmt.Errorf("sample %q: control %q is not of type %s", s.Name, s.Control, SampleControl))
		}
	}
	return errs
}

func (m *Model) validateBamInput(s *Sample) []error {
	var errs []error
	if s.Bam == "" {
		errs = append(errs, fmt.Errorf("sample %q: bam is required by %s", s.Name, m.Pipeline.Workflow))
	}
	if len(s.Fastq1) > 0 || len(s.Fastq2) > 0 {
		errs = append(errs, fmt.Errorf("sample %q: fastq given to %s, which reads bam", s.Name, m.Pipeline.Workflow))
	}
	return errs
}

func (m *Model) validateFastqInput(s *Sample) []error {
	var errs []error
	if s.Bam != "" {
		errs = append(errs, fmt.Errorf("sample %q: bam given to %s, which reads fastq", s.Name, m.Pipeline.Workflow))
	}
	if len(s.Fastq1) == 0 {
		errs = append(errs, fmt.Errorf("sample %q: fastq1 is required", s.Name))
	}
	if m.Pipeline.ReadType == ReadPaired && len(s.Fastq1) != len(s.Fastq2) {
		errs = append(errs, fmt.Errorf("sample %q: paired reads need as many fastq2 as fastq1 files (%d != %d)", s.Name, len(s.Fastq2), len(s.Fastq1)))
	}
	if m.Pipeline.ReadType == ReadSingle && len(s.Fastq2) > 0 {
		errs = append(errs, fmt.Errorf("sample %q: fastq2 given for single-end reads", s.Name))
	}
	return errs
}

func anyEnabled(switches map[string]bool) bool {
	for _, on := range switches {
		if on {
			return true
		}
	}
	return false
}
