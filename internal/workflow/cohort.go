package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/config"
	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/fsutil"
	"github.com/specialistvlad/genoflow/internal/ledger"
	"github.com/specialistvlad/genoflow/internal/script"
	"github.com/specialistvlad/genoflow/internal/syncpoll"
)

type cohortMerge struct {
	task     string
	template string
	step     string
	output   string
}

// mergeProducts assembles the cohort script that waits on every product of
// results, in sample order, and merges them into m.output.
func mergeProducts(ctx context.Context, env *Env, workflow string, results []*Result, m cohortMerge) (*script.Record, error) {
	logger := ctxlog.FromContext(ctx).With("sample", fsutil.CohortSample, "task", m.task)
	prods := products(results)
	if len(prods) == 0 {
		logger.Info("Nothing to merge, cohort post-process skipped.")
		return nil, nil
	}

	waits := make([]syncpoll.Wait, 0, len(prods))
	paths := make([]string, 0, len(prods))
	for _, p := range prods {
		waits = append(waits, syncpoll.NewWait(p.Tool+" of "+p.Sample, p.LogPath, p.Marker))
		paths = append(paths, p.Path)
	}

	sc := env.stageContext(workflow, &config.Sample{Name: fsutil.CohortSample})
	cmd, err := sc.Step(m.step, m.template, map[string]string{
		"inputs": strings.Join(paths, " "),
		"output": m.output,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.task, err)
	}
	art, err := artifact.New().WithCommand(cmd).WithOutput(artifact.PrimaryFile, m.output)
	if err != nil {
		return nil, err
	}

	rec, err := env.Assembler.Assemble(ctx, script.Request{
		Sample: fsutil.CohortSample,
		Phase:  script.PhasePostProcess,
		Task:   m.task,
		Ledger: ledger.New(),
		Waits:  waits,
	}, art)
	if err != nil {
		return nil, err
	}
	logger.Info("Assembled cohort post-process.", "inputs", len(prods))
	return rec, nil
}
