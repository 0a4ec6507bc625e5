package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/specialistvlad/genoflow/internal/capability"
	"github.com/specialistvlad/genoflow/internal/config"
	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/fsutil"
	"github.com/specialistvlad/genoflow/internal/manager"
	"github.com/specialistvlad/genoflow/internal/render"
	"github.com/specialistvlad/genoflow/internal/script"
	"github.com/specialistvlad/genoflow/internal/stage"
	"github.com/specialistvlad/genoflow/internal/syncpoll"
	"github.com/specialistvlad/genoflow/internal/workflow"
	"golang.org/x/sync/errgroup"
)

// Run loads the configuration, assembles the scripts of every sample and
// dispatches them. A failing sample never stops its siblings; the returned
// error lists every failed sample. The report is returned even on error.
func (a *App) Run(ctx context.Context) (*Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	model, err := a.loader.Load(ctx, a.config.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	wf, err := a.registry.Lookup(model.Pipeline.Workflow)
	if err != nil {
		return nil, err
	}

	caps := capability.FromToolset(model.Pipeline.Toolset, model.Pipeline.Switches)
	if err := stage.CheckCompatibility(caps); err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.NewString(), Workflow: wf.Name()}
	logger := a.logger.With("run_id", report.RunID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("Starting run.",
		"workflow", wf.Name(),
		"mode", a.config.Mode,
		"master", a.config.Master,
		"samples", len(model.Study.Samples),
		"capabilities", caps.Names(),
	)

	env, base, mgr, err := a.buildEnv(model, caps, wf, report.RunID)
	if err != nil {
		return nil, err
	}

	a.runSamples(ctx, wf, env, model.Study.Samples, report)

	cohort, err := wf.PostProcess(ctx, env, report.Succeeded)
	if err != nil {
		report.fail(fsutil.CohortSample, err)
	} else if cohort != nil {
		report.Cohort = cohort.Path
	}

	if mgr != nil && mgr.Len() > 0 {
		master, err := mgr.BuildMaster(ctx, manager.Options{
			ShDir:    env.Layout.ShDir(),
			LogDir:   env.Layout.LogDir(),
			Workflow: wf.Name(),
			RunID:    report.RunID,
		})
		if err != nil {
			return report, err
		}
		report.Master = master.Record.Path
		if err := mgr.Dispatch(ctx, master); err != nil {
			return report, err
		}
	}

	if q, ok := base.(*script.Queue); ok {
		logger.Debug("Waiting for pending submissions.")
		q.Wait()
	}
	if base.Mode() == script.ModeLocal && mgr == nil {
		a.inspect(ctx, env, report)
	}

	report.log(logger)
	return report, report.Err()
}

// buildEnv wires the shared run environment. In master mode the returned
// manager collects every script and base dispatches the master script.
func (a *App) buildEnv(model *config.Model, caps capability.Set, wf workflow.Workflow, runID string) (*workflow.Env, script.Submitter, *manager.Manager, error) {
	layout, err := fsutil.NewLayout(model.Study.Outdir)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := layout.Ensure(model.SampleNames()...); err != nil {
		return nil, nil, nil, err
	}

	renderer, err := render.NewTemplateRenderer(model.Templates)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load command templates: %w", err)
	}

	base, err := script.NewSubmitter(a.config.Mode, a.runner, model.Queue.SubmitCommand)
	if err != nil {
		return nil, nil, nil, err
	}
	submitter := base
	var mgr *manager.Manager
	if a.config.Master {
		mgr = manager.New(base)
		submitter = mgr
	}

	asm := script.NewAssembler(
		script.NewNaming(layout, wf.Name()),
		script.WithResources(script.Resources{
			NumThreads: model.Queue.NumThreads,
			PE:         model.Queue.PE,
			Queue:      model.Queue.Queue,
			MaxMemory:  model.Queue.MaxMemory,
		}),
		script.WithRunID(runID),
		script.WithWorkDir(layout.Root),
		script.WithPoller(syncpoll.New(syncpoll.WithPeriod(model.Sync.StatusCheckPeriod))),
		script.WithSubmitter(submitter),
	)
	return workflow.NewEnv(model, caps, layout, renderer, asm), base, mgr, nil
}

// runSamples assembles every sample on a bounded pool of workers. Each
// sample gets its own ledger inside the workflow, and its error is recorded
// rather than returned so siblings keep going.
func (a *App) runSamples(ctx context.Context, wf workflow.Workflow, env *workflow.Env, samples []*config.Sample, report *Report) {
	var g errgroup.Group
	g.SetLimit(a.config.WorkerCount)
	for _, s := range samples {
		g.Go(func() error {
			res, err := wf.Run(ctx, env, s)
			if err != nil {
				report.fail(s.Name, err)
				return nil
			}
			report.succeed(res)
			return nil
		})
	}
	_ = g.Wait()
	report.sort()
}

// inspect logs the completion state of every script after a local run.
// Scripts launched in the background may still be waiting.
func (a *App) inspect(ctx context.Context, env *workflow.Env, report *Report) {
	logger := ctxlog.FromContext(ctx)
	poller := env.Assembler.Poller()
	for _, res := range report.Succeeded {
		for _, rec := range res.Records {
			state, last, err := poller.Inspect(syncpoll.NewWait(rec.Task, rec.LogPath, rec.Marker))
			if err != nil {
				logger.Warn("Could not read completion log.", "sample", rec.Sample, "task", rec.Task, "error", err)
				continue
			}
			logger.Info("Script state.", "sample", rec.Sample, "task", rec.Task, "index", rec.Index, "state", state.String(), "last_line", last)
		}
	}
}
