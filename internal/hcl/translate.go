package hcl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/genoflow/internal/config"
	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/schema"
)

// merger folds decoded files into one model, remembering which file
// declared each singleton block.
type merger struct {
	model *config.Model
	seen  map[string]string
}

func (m *merger) once(block, file string) error {
	if prev, ok := m.seen[block]; ok {
		return fmt.Errorf("%s: duplicate %q block, already declared in %s", file, block, prev)
	}
	m.seen[block] = file
	return nil
}

func (m *merger) merge(ctx context.Context, file string, root *schema.File) error {
	logger := ctxlog.FromContext(ctx).With("file", file)

	if root.Pipeline != nil {
		if err := m.once("pipeline", file); err != nil {
			return err
		}
		if err := m.translatePipeline(ctx, root.Pipeline); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}
	if root.Queue != nil {
		if err := m.once("queue", file); err != nil {
			return err
		}
		m.translateQueue(root.Queue)
	}
	if root.Sync != nil {
		if err := m.once("sync", file); err != nil {
			return err
		}
		if p := root.Sync.StatusCheckPeriod; p != nil {
			m.model.Sync.StatusCheckPeriod = time.Duration(*p) * time.Second
		}
	}
	if root.Database != nil {
		if err := m.once("database", file); err != nil {
			return err
		}
		attrs, err := bodyStrings(root.Database.Body)
		if err != nil {
			return fmt.Errorf("%s: database: %w", file, err)
		}
		m.model.Database = attrs
	}
	if root.Study != nil {
		if err := m.once("study", file); err != nil {
			return err
		}
		m.model.Study.Outdir = root.Study.Outdir
	}

	for _, t := range root.Tools {
		if _, dup := m.model.Tools[t.Name]; dup {
			return fmt.Errorf("%s: duplicate tool %q", file, t.Name)
		}
		attrs, err := bodyStrings(t.Body)
		if err != nil {
			return fmt.Errorf("%s: tool %q: %w", file, t.Name, err)
		}
		m.model.Tools[t.Name] = attrs
	}
	for _, t := range root.Templates {
		if _, dup := m.model.Templates[t.Name]; dup {
			return fmt.Errorf("%s: duplicate template %q", file, t.Name)
		}
		m.model.Templates[t.Name] = t.Command
	}
	for _, s := range root.Samples {
		m.model.Study.Samples = append(m.model.Study.Samples, translateSample(s))
	}

	logger.Debug("Merged HCL file.", "tools", len(root.Tools), "templates", len(root.Templates), "samples", len(root.Samples))
	return nil
}

func (m *merger) translatePipeline(ctx context.Context, p *schema.Pipeline) error {
	m.model.Pipeline.Workflow = p.Workflow
	for _, name := range p.Toolset {
		if name = strings.TrimSpace(name); name != "" {
			m.model.Pipeline.Toolset = append(m.model.Pipeline.Toolset, name)
		}
	}
	if p.ReadType != "" {
		m.model.Pipeline.ReadType = p.ReadType
	}
	if isExprDefined(ctx, p.Switches, "switches") {
		switches, err := decodeSwitches(p.Switches)
		if err != nil {
			return fmt.Errorf("pipeline: switches: %w", err)
		}
		m.model.Pipeline.Switches = switches
	}
	return nil
}

func (m *merger) translateQueue(q *schema.Queue) {
	if q.NumThreads != nil {
		m.model.Queue.NumThreads = *q.NumThreads
	}
	m.model.Queue.PE = q.PE
	m.model.Queue.Queue = q.Queue
	m.model.Queue.MaxMemory = q.MaxMemory
	m.model.Queue.SubmitCommand = q.SubmitCommand
}

func translateSample(s *schema.Sample) *config.Sample {
	typ := s.Type
	if typ == "" {
		typ = config.SampleCase
	}
	return &config.Sample{
		Name:    s.Name,
		Type:    typ,
		Control: s.Control,
		Fastq1:  s.Fastq1,
		Fastq2:  s.Fastq2,
		Bam:     s.Bam,
	}
}
