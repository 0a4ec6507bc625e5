package stage

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/specialistvlad/genoflow/internal/fsutil"
	"github.com/specialistvlad/genoflow/internal/render"
	"github.com/specialistvlad/genoflow/internal/syncpoll"
)

// Control identifies the matched control of a case sample.
type Control struct {
	Sample string
	// Bam is the control's final alignment.
	Bam string
}

// Context is the read-only environment of one lane of one sample.
type Context struct {
	Workflow string
	Sample   string
	// Index is the 1-based fastq lane, or 0 when the context covers the
	// whole sample.
	Index     int
	PairedEnd bool
	Control   *Control
	Threads   int
	Dirs      fsutil.SampleDirs
	Renderer  render.Renderer
	// Params holds tool and database parameters flattened as "tool.attr".
	Params map[string]string
}

// Lane returns the file-name stem of the lane: the sample name, suffixed
// with the lane index when there is one.
func (c *Context) Lane() string {
	if c.Index > 0 {
		return fmt.Sprintf("%s_%d", c.Sample, c.Index)
	}
	return c.Sample
}

// File joins dir with the lane stem and suffix.
func (c *Context) File(dir, suffix string) string {
	return filepath.Join(dir, c.Lane()+suffix)
}

// ForLane returns a copy of c bound to lane index.
func (c *Context) ForLane(index int) *Context {
	next := *c
	next.Index = index
	return &next
}

// WithControl returns a copy of c analysed against control.
func (c *Context) WithControl(control *Control) *Context {
	next := *c
	next.Control = control
	return &next
}

// params merges, in increasing priority: tool defaults, configured
// parameters, the common lane parameters and extra.
func (c *Context) params(extra map[string]string) map[string]string {
	out := DefaultParams()
	for k, v := range c.Params {
		out[k] = v
	}

	threads := c.Threads
	if threads <= 0 {
		threads = 1
	}
	out["sample"] = c.Sample
	out["lane"] = c.Lane()
	out["sample_dir"] = c.Dirs.Root
	out["tmpdir"] = c.Dirs.Tmp
	out["threads"] = strconv.Itoa(threads)
	out["paired"] = strconv.FormatBool(c.PairedEnd)
	out["fastq2"] = ""
	out["control"] = ""
	out["control_sample"] = ""
	if c.Control != nil {
		out["control"] = c.Control.Bam
		out["control_sample"] = c.Control.Sample
	}

	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Render renders template with the lane parameters and extra.
func (c *Context) Render(template string, extra map[string]string) (string, error) {
	if c.Renderer == nil {
		return "", fmt.Errorf("no command renderer configured")
	}
	text, err := c.Renderer.Render(template, c.params(extra))
	if err != nil {
		return "", err
	}
	return text, nil
}

// Step renders template and wraps it as a named step that reports failure
// to the job log.
func (c *Context) Step(name, template string, extra map[string]string) (string, error) {
	text, err := c.Render(template, extra)
	if err != nil {
		return "", err
	}
	return syncpoll.Step(name, text)
}
