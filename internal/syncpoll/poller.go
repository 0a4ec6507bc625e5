package syncpoll

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/genoflow/internal/render"
)

const (
	// DefaultPeriod is the interval between two looks at an upstream log.
	DefaultPeriod = 60 * time.Second
	// DefaultErrorPrefix starts every failure line written by a job.
	DefaultErrorPrefix = "Error Step: "
	// MarkerDelimiter separates alternatives in a composite success marker.
	MarkerDelimiter = "|"
)

// ErrInvalidWait is returned when a wait cannot be rendered.
var ErrInvalidWait = errors.New("invalid wait")

// Wait describes one upstream completion a script must confirm.
type Wait struct {
	// Label names the upstream producer in diagnostics, e.g. "bam from S1".
	Label string
	// LogPath is the completion log written by the upstream job.
	LogPath string
	// Success lists the accepted terminal lines. Any one of them confirms.
	Success []string
}

// NewWait builds a Wait from a success marker. A composite marker joined with
// MarkerDelimiter accepts any of its components.
func NewWait(label, logPath, marker string) Wait {
	var success []string
	for _, m := range strings.Split(marker, MarkerDelimiter) {
		if m != "" {
			success = append(success, m)
		}
	}
	return Wait{Label: label, LogPath: logPath, Success: success}
}

func (w Wait) validate() error {
	if w.LogPath == "" {
		return fmt.Errorf("%w: %q has no log path", ErrInvalidWait, w.Label)
	}
	if len(w.Success) == 0 {
		return fmt.Errorf("%w: %q has no success marker", ErrInvalidWait, w.Label)
	}
	for _, s := range w.Success {
		if s == "" || strings.Contains(s, "\n") {
			return fmt.Errorf("%w: %q has an unusable success marker %q", ErrInvalidWait, w.Label, s)
		}
	}
	return nil
}

// Poller renders waits with a fixed period and error prefix.
type Poller struct {
	period      time.Duration
	errorPrefix string
}

// Option configures a Poller.
type Option func(*Poller)

// WithPeriod sets the polling interval. Values under one second are rounded
// up to one second since sleep(1) takes whole seconds.
func WithPeriod(d time.Duration) Option {
	return func(p *Poller) {
		if d < time.Second {
			d = time.Second
		}
		p.period = d
	}
}

// WithErrorPrefix overrides the failure prefix. An empty prefix is ignored.
func WithErrorPrefix(prefix string) Option {
	return func(p *Poller) {
		if prefix != "" {
			p.errorPrefix = prefix
		}
	}
}

// New returns a Poller with the defaults applied before opts.
func New(opts ...Option) *Poller {
	p := &Poller{
		period:      DefaultPeriod,
		errorPrefix: DefaultErrorPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Period returns the polling interval.
func (p *Poller) Period() time.Duration {
	return p.period
}

// ErrorPrefix returns the failure prefix.
func (p *Poller) ErrorPrefix() string {
	return p.errorPrefix
}

// Render emits shell text that blocks until every wait succeeds, in order.
// Rendering no waits yields an empty string.
func (p *Poller) Render(waits ...Wait) (string, error) {
	var b strings.Builder
	for _, w := range waits {
		if err := w.validate(); err != nil {
			return "", err
		}
		text, err := p.renderOne(w)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

type waitVars struct {
	Label       string   `cty:"label"`
	Log         string   `cty:"log"`
	ErrorPrefix string   `cty:"error_prefix"`
	Success     []string `cty:"success"`
	Period      int      `cty:"period"`
}

func (p *Poller) renderOne(w Wait) (string, error) {
	label := w.Label
	if label == "" {
		label = w.LogPath
	}
	return render.Shell().Execute("wait", waitVars{
		Label:       oneLine(label),
		Log:         w.LogPath,
		ErrorPrefix: p.errorPrefix,
		Success:     w.Success,
		Period:      int(p.period / time.Second),
	})
}

// FailFunc is the shell function a generated script calls when one of its
// steps fails. It appends an error line to $LOGFILE and exits with status 1.
const FailFunc = "step_failed"

type failFuncVars struct {
	Name        string `cty:"name"`
	ErrorPrefix string `cty:"error_prefix"`
}

// RenderFailFunc emits the definition of FailFunc using the poller's error
// prefix, so producers and waiters agree on the failure format.
func (p *Poller) RenderFailFunc() (string, error) {
	return render.Shell().Execute("fail_func", failFuncVars{Name: FailFunc, ErrorPrefix: p.errorPrefix})
}

type successVars struct {
	Marker string `cty:"marker"`
}

// RenderSuccess emits the terminal line a job writes once marker's work is
// done.
func (p *Poller) RenderSuccess(marker string) (string, error) {
	return render.Shell().Execute("success", successVars{Marker: marker})
}

type stepVars struct {
	Name     string `cty:"name"`
	Command  string `cty:"command"`
	FailFunc string `cty:"fail_func"`
}

// Step wraps command in a subshell with errexit set, and pipefail where the
// shell has it, so that any failing line marks the step as failed through
// FailFunc. The subshell must not be part of an AND-OR list, otherwise shells
// ignore errexit inside it.
func Step(name, command string) (string, error) {
	return render.Shell().Execute("step", stepVars{
		Name:     name,
		Command:  strings.TrimSuffix(command, "\n"),
		FailFunc: FailFunc,
	})
}

// Quote wraps s in single quotes for POSIX shells.
func Quote(s string) string {
	return render.ShellQuote(s)
}

func oneLine(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
