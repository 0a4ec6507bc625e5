package render

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/gocty"
)

//go:embed shell.hcl
var shellTemplates []byte

// ShellQuoteFunc wraps a string in single quotes for POSIX shells. Templates
// call it as shquote(s).
var ShellQuoteFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "str", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(ShellQuote(args[0].AsString())), nil
	},
})

// ShellQuote wraps s in single quotes for POSIX shells.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var shell = sync.OnceValue(func() *TemplateRenderer {
	templates, err := DecodeTemplates("shell.hcl", shellTemplates)
	if err != nil {
		panic(fmt.Sprintf("render: embedded shell templates: %v", err))
	}
	return newRenderer(templates)
})

// Shell returns the renderer of the script scaffolding templates: preamble,
// job, fail_func, success, wait, step and master.
func Shell() *TemplateRenderer {
	return shell()
}

// Execute evaluates the template registered under name with the fields of
// data as variables. data must be a struct whose exported fields carry cty
// tags; a nil slice becomes null, so pass empty slices to loops.
func (r *TemplateRenderer) Execute(name string, data any) (string, error) {
	ty, err := gocty.ImpliedType(data)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", name, err)
	}
	if !ty.IsObjectType() {
		return "", fmt.Errorf("template %q: variables must be a struct, got %s", name, ty.FriendlyName())
	}
	val, err := gocty.ToCtyValue(data, ty)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", name, err)
	}
	return r.eval(name, val.AsValueMap())
}

func (r *TemplateRenderer) eval(name string, vars map[string]cty.Value) (string, error) {
	r.mu.RLock()
	expr, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	evalCtx := &hcl.EvalContext{Variables: vars, Functions: r.functions}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("template %q: %w", name, diags)
	}
	if val.IsNull() || !val.IsWhollyKnown() {
		return "", fmt.Errorf("template %q produced no value", name)
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", name, err)
	}
	return str.AsString(), nil
}
