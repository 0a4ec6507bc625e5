package hcl

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/genoflow/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// isExprDefined checks if an HCL expression was actually present in the
// source. The decoder populates omitted optional fields with zero-width
// placeholder expressions, so a nil check is insufficient.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	defined := rng.End.Byte > rng.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", rng.String(),
		"is_defined", defined,
	)
	return defined
}

// bodyStrings evaluates every attribute of a free-form body and converts it
// to a string. Lists and tuples are joined with single spaces, so
// `options = ["-k", "19"]` becomes "-k 19".
func bodyStrings(body hcl.Body) (map[string]string, error) {
	out := make(map[string]string)
	if body == nil {
		return out, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val, diags := attrs[name].Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		s, err := toString(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

func toString(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", nil
	}
	if !val.IsWhollyKnown() {
		return "", fmt.Errorf("value is not known")
	}
	ty := val.Type()
	if ty.IsListType() || ty.IsTupleType() || ty.IsSetType() {
		parts := make([]string, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			s, err := toString(elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, " "), nil
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("cannot convert %s to string: %w", ty.FriendlyName(), err)
	}
	return str.AsString(), nil
}

// decodeSwitches decodes an object of capability names to booleans.
func decodeSwitches(expr hcl.Expression) (map[string]bool, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return map[string]bool{}, nil
	}
	converted, err := convert.Convert(val, cty.Map(cty.Bool))
	if err != nil {
		return nil, fmt.Errorf("want an object of booleans, got %s: %w", val.Type().FriendlyName(), err)
	}
	var out map[string]bool
	if err := gocty.FromCtyValue(converted, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]bool{}
	}
	return out, nil
}
