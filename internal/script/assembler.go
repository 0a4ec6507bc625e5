package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/ledger"
	"github.com/specialistvlad/genoflow/internal/render"
	"github.com/specialistvlad/genoflow/internal/syncpoll"
)

// ErrInvalidRequest is returned for a request without sample, phase or task.
var ErrInvalidRequest = errors.New("invalid script request")

// FinishLine is echoed to the job output once the script has completed.
const FinishLine = "echo `date` Finish the job execution!"

// Resources holds the batch resource requests written into every preamble.
type Resources struct {
	NumThreads int
	// PE is the parallel environment name. Empty omits the directive.
	PE        string
	Queue     string
	MaxMemory string
}

// Request describes one script to assemble.
type Request struct {
	Sample string
	Phase  Phase
	Task   string
	Index  int
	// Ledger is the sample's task ledger. Task is appended to it and the
	// resulting success marker closes the script.
	Ledger *ledger.Ledger
	// Waits are polled, in order, before the artifact's command text.
	Waits []syncpoll.Wait
	// Chained marks a script started by another script's launch line
	// rather than by the submitter.
	Chained bool
}

func (r Request) validate() error {
	var errs []error
	if r.Sample == "" {
		errs = append(errs, errors.New("sample name is empty"))
	}
	if r.Phase == "" {
		errs = append(errs, errors.New("phase is empty"))
	} else if !r.Phase.Valid() {
		errs = append(errs, fmt.Errorf("unknown phase %q", r.Phase))
	}
	if r.Task == "" {
		errs = append(errs, errors.New("task is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}

// Assembler builds, writes and dispatches scripts.
type Assembler struct {
	naming    Naming
	workDir   string
	resources Resources
	runID     string
	poller    *syncpoll.Poller
	submitter Submitter
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithResources sets the batch resource requests.
func WithResources(r Resources) Option {
	return func(a *Assembler) { a.resources = r }
}

// WithRunID stamps every script with id.
func WithRunID(id string) Option {
	return func(a *Assembler) { a.runID = id }
}

// WithPoller sets the poller used to render waits and status lines.
func WithPoller(p *syncpoll.Poller) Option {
	return func(a *Assembler) {
		if p != nil {
			a.poller = p
		}
	}
}

// WithSubmitter sets the dispatch strategy.
func WithSubmitter(s Submitter) Option {
	return func(a *Assembler) {
		if s != nil {
			a.submitter = s
		}
	}
}

// WithWorkDir sets the directory scripts change into before running.
func WithWorkDir(dir string) Option {
	return func(a *Assembler) { a.workDir = dir }
}

// NewAssembler returns an Assembler that writes scripts without running them
// unless a submitter is configured.
func NewAssembler(naming Naming, opts ...Option) *Assembler {
	a := &Assembler{
		naming:    naming,
		poller:    syncpoll.New(),
		submitter: WriteOnly{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Naming returns the path scheme of the assembler.
func (a *Assembler) Naming() Naming { return a.naming }

// Poller returns the poller shared by every assembled script.
func (a *Assembler) Poller() *syncpoll.Poller { return a.poller }

// Submitter returns the dispatch strategy.
func (a *Assembler) Submitter() Submitter { return a.submitter }

// Build composes the script text for art without touching the filesystem.
// The task of req is appended to its ledger once the waits have rendered.
func (a *Assembler) Build(req Request, art artifact.Artifact) (*Record, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	waits, err := a.poller.Render(req.Waits...)
	if err != nil {
		return nil, err
	}
	if req.Ledger == nil {
		req.Ledger = ledger.New()
	}
	if err := req.Ledger.Append(req.Task); err != nil {
		return nil, err
	}

	rec := &Record{
		Sample:  req.Sample,
		Phase:   req.Phase,
		Task:    req.Task,
		Index:   req.Index,
		Path:    a.naming.ScriptPath(req.Task, req.Sample, req.Index),
		LogPath: a.naming.LogPath(req.Task, req.Sample, req.Index),
		OutPath: a.naming.OutPath(req.Task, req.Sample, req.Index),
		Marker:  req.Ledger.SuccessMarker(),
		Chained: req.Chained,
	}
	for _, w := range req.Waits {
		rec.Waits = append(rec.Waits, w.LogPath)
	}

	preamble, err := a.preamble(rec)
	if err != nil {
		return nil, err
	}
	success, err := a.poller.RenderSuccess(rec.Marker)
	if err != nil {
		return nil, err
	}
	text, err := render.Shell().Execute("job", jobVars{
		Preamble: preamble,
		Waits:    waits,
		Command:  art.Command(),
		Cleanup:  cleanupPaths(art),
		Success:  success,
		Finish:   FinishLine,
	})
	if err != nil {
		return nil, err
	}
	rec.Text = text
	return rec, nil
}

type jobVars struct {
	Preamble string   `cty:"preamble"`
	Waits    string   `cty:"waits"`
	Command  string   `cty:"command"`
	Cleanup  []string `cty:"cleanup"`
	Success  string   `cty:"success"`
	Finish   string   `cty:"finish"`
}

type preambleVars struct {
	PE        string `cty:"pe"`
	Threads   int    `cty:"threads"`
	Queue     string `cty:"queue"`
	MaxMemory string `cty:"max_memory"`
	OutPath   string `cty:"out_path"`
	RunID     string `cty:"run_id"`
	WorkDir   string `cty:"work_dir"`
	LogPath   string `cty:"log_path"`
	FailFunc  string `cty:"fail_func"`
}

func (a *Assembler) preamble(rec *Record) (string, error) {
	failFunc, err := a.poller.RenderFailFunc()
	if err != nil {
		return "", err
	}
	threads := a.resources.NumThreads
	if threads <= 0 {
		threads = 1
	}
	return render.Shell().Execute("preamble", preambleVars{
		PE:        a.resources.PE,
		Threads:   threads,
		Queue:     a.resources.Queue,
		MaxMemory: a.resources.MaxMemory,
		OutPath:   rec.OutPath,
		RunID:     a.runID,
		WorkDir:   a.workDir,
		LogPath:   rec.LogPath,
		FailFunc:  failFunc,
	})
}

// cleanupPaths returns the deletion targets of art, each once, skipping any
// path an output still points at.
func cleanupPaths(art artifact.Artifact) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, p := range art.Cleanup() {
		if _, dup := seen[p]; dup || art.Referenced(p) {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Write stores rec as an executable file.
func (a *Assembler) Write(ctx context.Context, rec *Record) error {
	logger := ctxlog.FromContext(ctx)
	if err := os.MkdirAll(filepath.Dir(rec.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create script directory for %s: %w", rec.Path, err)
	}
	if err := os.WriteFile(rec.Path, []byte(rec.Text), 0o755); err != nil {
		return fmt.Errorf("failed to write script %s: %w", rec.Path, err)
	}
	if err := os.Chmod(rec.Path, 0o755); err != nil {
		return fmt.Errorf("failed to make script %s executable: %w", rec.Path, err)
	}
	logger.Debug("Wrote script.", "sample", rec.Sample, "phase", rec.Phase, "task", rec.Task, "path", rec.Path)
	return nil
}

// Assemble builds, writes and dispatches a script.
func (a *Assembler) Assemble(ctx context.Context, req Request, art artifact.Artifact) (*Record, error) {
	rec, err := a.Build(req, art)
	if err != nil {
		return nil, err
	}
	if err := a.Commit(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AssembleChained builds and writes a script that another script launches.
// It is only dispatched here when the submitter has no launch line for it.
func (a *Assembler) AssembleChained(ctx context.Context, req Request, art artifact.Artifact) (*Record, error) {
	req.Chained = true
	return a.Assemble(ctx, req, art)
}

// Commit writes every record, clears their completion logs from a previous
// run, and then dispatches them in order. Nothing is dispatched when a write
// fails. A chained record is dispatched only when the submitter has no launch
// line for it. Logs are kept in test mode, where nothing runs.
func (a *Assembler) Commit(ctx context.Context, recs ...*Record) error {
	for _, rec := range recs {
		if err := a.Write(ctx, rec); err != nil {
			return err
		}
	}
	if effectiveMode(a.submitter) != ModeTest {
		for _, rec := range recs {
			if err := removeStaleLog(rec); err != nil {
				return err
			}
		}
	}
	for _, rec := range recs {
		if rec.Chained && a.submitter.LaunchLine(rec) != "" {
			continue
		}
		if err := a.submitter.Submit(ctx, rec); err != nil {
			return fmt.Errorf("failed to submit %s: %w", rec.Path, err)
		}
	}
	return nil
}

// effectiveMode is the mode scripts finally run under. A deferring
// submitter reports the mode of the submitter it hands the run to.
func effectiveMode(s Submitter) Mode {
	for {
		d, ok := s.(interface{ Base() Submitter })
		if !ok {
			return s.Mode()
		}
		s = d.Base()
	}
}

// LaunchText returns the lines that start recs from inside another script.
func (a *Assembler) LaunchText(recs ...*Record) string {
	var b strings.Builder
	for _, rec := range recs {
		if line := a.submitter.LaunchLine(rec); line != "" {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}
