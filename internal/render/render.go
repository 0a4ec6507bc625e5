// Package render turns named command templates and flat parameter sets into
// shell fragments.
//
// Templates are HCL template expressions. Parameters are flat string pairs;
// a dotted key such as "bwa.path" is exposed to the template as the attribute
// path of an object variable, so a template can write ${bwa.path}. Rendering
// is deterministic and has no side effects.
package render

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// ErrUnknownTemplate is returned when no template is registered under a name.
var ErrUnknownTemplate = errors.New("unknown template")

// Renderer renders a named template with a flat parameter set.
type Renderer interface {
	Render(name string, params map[string]string) (string, error)
}

// Func adapts a plain function to the Renderer interface.
type Func func(name string, params map[string]string) (string, error)

// Render calls f.
func (f Func) Render(name string, params map[string]string) (string, error) {
	return f(name, params)
}

// TemplateRenderer renders HCL template expressions.
type TemplateRenderer struct {
	mu        sync.RWMutex
	templates map[string]hcl.Expression
	functions map[string]function.Function
}

// NewTemplateRenderer returns a renderer preloaded with the built-in templates.
// Entries in overrides replace built-ins of the same name or add new ones.
func NewTemplateRenderer(overrides map[string]hcl.Expression) (*TemplateRenderer, error) {
	builtin, err := Builtin()
	if err != nil {
		return nil, err
	}
	r := newRenderer(builtin)
	for name, expr := range overrides {
		r.templates[name] = expr
	}
	return r, nil
}

func newRenderer(templates map[string]hcl.Expression) *TemplateRenderer {
	return &TemplateRenderer{
		templates: templates,
		functions: map[string]function.Function{
			"join":    stdlib.JoinFunc,
			"upper":   stdlib.UpperFunc,
			"lower":   stdlib.LowerFunc,
			"format":  stdlib.FormatFunc,
			"shquote": ShellQuoteFunc,
		},
	}
}

// Add parses text as a template and registers it under name.
func (r *TemplateRenderer) Add(name, text string) error {
	expr, err := ParseTemplate(name, text)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = expr
	return nil
}

// Names lists the registered template names in lexical order.
func (r *TemplateRenderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render evaluates the template registered under name.
func (r *TemplateRenderer) Render(name string, params map[string]string) (string, error) {
	r.mu.RLock()
	_, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	vars, err := Variables(params)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", name, err)
	}
	return r.eval(name, vars)
}

// ParseTemplate parses text as a standalone HCL template.
func ParseTemplate(name, text string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(text), name, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse template %q: %w", name, diags)
	}
	return expr, nil
}

// Variables converts flat parameters into template variables. Dotted keys
// nest into objects; a key that is both a leaf and a parent is an error.
func Variables(params map[string]string) (map[string]cty.Value, error) {
	root := make(map[string]any)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts := strings.Split(key, ".")
		node := root
		for i, part := range parts {
			if part == "" {
				return nil, fmt.Errorf("invalid parameter name %q", key)
			}
			if i == len(parts)-1 {
				if _, exists := node[part]; exists {
					return nil, fmt.Errorf("parameter %q conflicts with a nested parameter", key)
				}
				node[part] = params[key]
				break
			}
			next, exists := node[part]
			if !exists {
				child := make(map[string]any)
				node[part] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("parameter %q conflicts with %q", key, strings.Join(parts[:i+1], "."))
			}
			node = child
		}
	}

	vars := make(map[string]cty.Value, len(root))
	for k, v := range root {
		vars[k] = toValue(v)
	}
	return vars, nil
}

func toValue(v any) cty.Value {
	switch tv := v.(type) {
	case string:
		return cty.StringVal(tv)
	case map[string]any:
		attrs := make(map[string]cty.Value, len(tv))
		for k, child := range tv {
			attrs[k] = toValue(child)
		}
		return cty.ObjectVal(attrs)
	default:
		panic(fmt.Sprintf("render: unexpected parameter node %T", v))
	}
}
