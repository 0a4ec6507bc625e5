package stage

import (
	"context"
	"fmt"

	"github.com/specialistvlad/genoflow/internal/artifact"
	"github.com/specialistvlad/genoflow/internal/capability"
	"github.com/specialistvlad/genoflow/internal/ctxlog"
)

// Func transforms an Artifact. It must not mutate shared state.
type Func func(ctx context.Context, caps capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error)

// Predicate decides whether a Def runs.
type Predicate func(caps capability.Set, sc *Context) bool

// Def is one tagged step of a phase.
type Def struct {
	Name string
	When Predicate
	Run  Func
}

func (d Def) enabled(caps capability.Set, sc *Context) bool {
	return d.When == nil || d.When(caps, sc)
}

// Stage is an ordered phase of Defs. When is optional and gates the whole
// phase.
type Stage struct {
	Name string
	When Predicate
	Defs []Def
}

// Apply runs every enabled Def in order. Errors are wrapped with the phase
// and step names.
func (s Stage) Apply(ctx context.Context, caps capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
	if s.When != nil && !s.When(caps, sc) {
		return in, nil
	}
	logger := ctxlog.FromContext(ctx).With("stage", s.Name)

	out := in
	for _, def := range s.Defs {
		if !def.enabled(caps, sc) {
			continue
		}
		logger.Debug("Applying step.", "step", def.Name, "sample", sc.Sample, "lane", sc.Lane())
		next, err := def.Run(ctx, caps, out, sc)
		if err != nil {
			return in, fmt.Errorf("%s/%s: %w", s.Name, def.Name, err)
		}
		out = next
	}
	return out, nil
}

// Steps returns the names of the Defs that would run, for inspection.
func (s Stage) Steps(caps capability.Set, sc *Context) []string {
	if s.When != nil && !s.When(caps, sc) {
		return nil
	}
	var names []string
	for _, def := range s.Defs {
		if def.enabled(caps, sc) {
			names = append(names, def.Name)
		}
	}
	return names
}

// FirstOf groups exclusive alternatives. The resulting Def is enabled when
// any alternative is, and runs only the first enabled one.
func FirstOf(name string, defs ...Def) Def {
	pick := func(caps capability.Set, sc *Context) (Def, bool) {
		for _, d := range defs {
			if d.enabled(caps, sc) {
				return d, true
			}
		}
		return Def{}, false
	}
	return Def{
		Name: name,
		When: func(caps capability.Set, sc *Context) bool {
			_, ok := pick(caps, sc)
			return ok
		},
		Run: func(ctx context.Context, caps capability.Set, in artifact.Artifact, sc *Context) (artifact.Artifact, error) {
			d, ok := pick(caps, sc)
			if !ok {
				return in, nil
			}
			ctxlog.FromContext(ctx).Debug("Selected alternative.", "group", name, "step", d.Name)
			out, err := d.Run(ctx, caps, in, sc)
			if err != nil {
				return in, fmt.Errorf("%s: %w", d.Name, err)
			}
			return out, nil
		},
	}
}

// On is enabled when the named capability is.
func On(name string) Predicate {
	return func(caps capability.Set, _ *Context) bool {
		return caps.Enabled(name)
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(caps capability.Set, sc *Context) bool {
		return !p(caps, sc)
	}
}

// All is enabled when every predicate is.
func All(ps ...Predicate) Predicate {
	return func(caps capability.Set, sc *Context) bool {
		for _, p := range ps {
			if !p(caps, sc) {
				return false
			}
		}
		return true
	}
}

// PairedEnd is enabled for paired-end reads.
func PairedEnd(_ capability.Set, sc *Context) bool {
	return sc.PairedEnd
}

// HasControl is enabled for a case sample analysed against a control.
func HasControl(_ capability.Set, sc *Context) bool {
	return sc.Control != nil
}
