package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/specialistvlad/genoflow/internal/syncpoll"
)

// Mode selects how assembled scripts are dispatched.
type Mode string

const (
	// ModeTest writes scripts and never runs them.
	ModeTest Mode = "test"
	// ModeLocal runs each script synchronously with sh.
	ModeLocal Mode = "local"
	// ModeQueue hands each script to the batch queue and returns at once.
	ModeQueue Mode = "queue"
	// ModeDeferred collects scripts for a later master submission.
	ModeDeferred Mode = "deferred"
)

// ParseMode validates a user supplied mode. Deferred mode is not selectable
// directly; it wraps one of the other modes.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTest, ModeLocal, ModeQueue:
		return m, nil
	default:
		return "", fmt.Errorf("unknown submission mode %q (want test, local or queue)", s)
	}
}

// Submitter dispatches written scripts.
type Submitter interface {
	Mode() Mode
	// Submit dispatches rec after it has been written.
	Submit(ctx context.Context, rec *Record) error
	// LaunchLine is the shell line that starts rec from inside another
	// script, or "" when the submitter dispatches rec itself.
	LaunchLine(rec *Record) string
}

// DefaultSubmitCommand is the batch queue submission command.
var DefaultSubmitCommand = []string{"qsub"}

// Command is one external process invocation.
type Command struct {
	Name string
	Args []string
	// OutputPath receives stdout and stderr when set; otherwise output is
	// discarded.
	OutputPath string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs external commands to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Dir is the working directory of every command.
	Dir string
}

// Run starts cmd and waits for it.
func (r ExecRunner) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = r.Dir

	// Output goes to a file, never a pipe, so background jobs started by a
	// script do not hold Run open. No output path means /dev/null.
	if cmd.OutputPath != "" {
		f, err := os.OpenFile(cmd.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open output %s: %w", cmd.OutputPath, err)
		}
		defer f.Close()
		c.Stdout = f
		c.Stderr = f
	}

	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d: %w", cmd, exitErr.ExitCode(), err)
		}
		return fmt.Errorf("failed to run %s: %w", cmd, err)
	}
	return nil
}

// NewSubmitter returns the submitter of mode. submitCommand is only used in
// queue and test modes; nil selects DefaultSubmitCommand.
func NewSubmitter(mode Mode, runner Runner, submitCommand []string) (Submitter, error) {
	if len(submitCommand) == 0 {
		submitCommand = DefaultSubmitCommand
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	switch mode {
	case ModeTest:
		return WriteOnly{SubmitCommand: submitCommand}, nil
	case ModeLocal:
		return &Local{Runner: runner}, nil
	case ModeQueue:
		return &Queue{Runner: runner, SubmitCommand: submitCommand}, nil
	default:
		return nil, fmt.Errorf("no submitter for mode %q", mode)
	}
}

// WriteOnly leaves written scripts alone. Launch lines still use the queue
// submission command so the scripts read as they would in production.
type WriteOnly struct {
	SubmitCommand []string
}

func (WriteOnly) Mode() Mode { return ModeTest }

func (WriteOnly) Submit(ctx context.Context, rec *Record) error {
	ctxlog.FromContext(ctx).Debug("Test mode, script not submitted.", "path", rec.Path)
	return nil
}

func (w WriteOnly) LaunchLine(rec *Record) string {
	return queueLine(w.SubmitCommand, rec)
}

// Local runs scripts synchronously. A script that exits non-zero is logged,
// not returned: its completion log carries the failure.
type Local struct {
	Runner Runner
	Shell  string
}

func (*Local) Mode() Mode { return ModeLocal }

func (l *Local) shell() string {
	if l.Shell == "" {
		return "sh"
	}
	return l.Shell
}

func (l *Local) Submit(ctx context.Context, rec *Record) error {
	logger := ctxlog.FromContext(ctx).With("task", rec.Task)
	if err := removeStaleLog(rec); err != nil {
		return err
	}
	logger.Info("Running script.", "path", rec.Path)
	err := l.Runner.Run(ctx, Command{Name: l.shell(), Args: []string{rec.Path}, OutputPath: rec.OutPath})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.Warn("Script finished with an error.", "path", rec.Path, "error", err)
	}
	return nil
}

// LaunchLine starts rec in the background so a waiting script never blocks
// the one that launched it.
func (l *Local) LaunchLine(rec *Record) string {
	return fmt.Sprintf("%s %s >> %s 2>&1 &", l.shell(), syncpoll.Quote(rec.Path), syncpoll.Quote(rec.OutPath))
}

// Queue submits scripts to the batch queue in the background. Wait blocks
// until every submission command has returned.
type Queue struct {
	Runner        Runner
	SubmitCommand []string

	wg sync.WaitGroup
}

func (*Queue) Mode() Mode { return ModeQueue }

func (q *Queue) Submit(ctx context.Context, rec *Record) error {
	if err := removeStaleLog(rec); err != nil {
		return err
	}
	cmd := Command{
		Name: q.SubmitCommand[0],
		Args: append(append([]string{}, q.SubmitCommand[1:]...), rec.Path),
	}
	logger := ctxlog.FromContext(ctx).With("task", rec.Task)
	logger.Info("Submitting script.", "command", cmd.String())

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.Runner.Run(ctx, cmd); err != nil {
			logger.Error("Submission failed.", "path", rec.Path, "error", err)
		}
	}()
	return nil
}

func (q *Queue) LaunchLine(rec *Record) string {
	return queueLine(q.SubmitCommand, rec)
}

// Wait blocks until every pending submission command has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func queueLine(submit []string, rec *Record) string {
	if len(submit) == 0 {
		submit = DefaultSubmitCommand
	}
	return strings.Join(submit, " ") + " " + syncpoll.Quote(rec.Path)
}

// removeStaleLog drops the completion log of a previous run, so waits do not
// match an old marker.
func removeStaleLog(rec *Record) error {
	if err := os.Remove(rec.LogPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale log %s: %w", rec.LogPath, err)
	}
	return nil
}
