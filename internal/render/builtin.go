package render

import (
	_ "embed"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

//go:embed templates.hcl
var builtinTemplates []byte

type templateFile struct {
	Templates []*templateBlock `hcl:"template,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type templateBlock struct {
	Name    string         `hcl:"name,label"`
	Command hcl.Expression `hcl:"command"`
}

// Builtin parses the embedded tool templates.
func Builtin() (map[string]hcl.Expression, error) {
	return DecodeTemplates("templates.hcl", builtinTemplates)
}

// DecodeTemplates parses every `template "<name>" { command = ... }` block in
// src. The command expressions are kept unevaluated.
func DecodeTemplates(filename string, src []byte) (map[string]hcl.Expression, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	var root templateFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, diags)
	}

	out := make(map[string]hcl.Expression, len(root.Templates))
	for _, t := range root.Templates {
		if _, dup := out[t.Name]; dup {
			return nil, fmt.Errorf("%s: template %q is defined twice", filename, t.Name)
		}
		out[t.Name] = t.Command
	}
	return out, nil
}
