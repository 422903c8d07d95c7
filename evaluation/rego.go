package evaluation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/yairfalse/aerographer/types"
)

// regoQueryRoot is the namespace a policy module must populate. A policy
// produces a document with "message" (string) and "passed" (bool), and may
// declare "includes" as a list of kind paths it needs scanned.
const regoQueryRoot = "data.aerographer"

// RegoCheck compiles a Rego module into a check function. The module is
// prepared once; each invocation evaluates it with the resource rendered
// as input. Returns the check plus any includes the policy declares.
func RegoCheck(ctx context.Context, name, source string) (CheckFunc, []string, error) {
	prepared, err := rego.New(
		rego.Query(regoQueryRoot),
		rego.Module(name, source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("compile policy %s: %w", name, err)
	}

	includes := staticIncludes(ctx, prepared)

	check := func(ctx context.Context, ec *CheckContext) (types.Result, error) {
		rs, err := prepared.Eval(ctx, rego.EvalInput(ec.Resource.AsMap()))
		if err != nil {
			return types.Result{}, fmt.Errorf("evaluate policy %s: %w", name, err)
		}
		res, ok := decodeDecision(rs)
		if !ok {
			return types.Result{}, fmt.Errorf("policy %s produced no decision", name)
		}
		return res, nil
	}
	return check, includes, nil
}

// staticIncludes evaluates the module without input to read an includes
// declaration. Rules depending on input are undefined here, which is fine:
// includes must be static.
func staticIncludes(ctx context.Context, prepared rego.PreparedEvalQuery) []string {
	rs, err := prepared.Eval(ctx)
	if err != nil {
		return nil
	}
	var out []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			doc, ok := expr.Value.(map[string]any)
			if !ok {
				continue
			}
			raw, ok := doc["includes"].([]any)
			if !ok {
				continue
			}
			for _, v := range raw {
				if s, ok := v.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func decodeDecision(rs rego.ResultSet) (types.Result, bool) {
	for _, result := range rs {
		for _, expr := range result.Expressions {
			doc, ok := expr.Value.(map[string]any)
			if !ok {
				continue
			}
			msg, hasMsg := doc["message"].(string)
			passed, hasPassed := doc["passed"].(bool)
			if !hasPassed {
				continue
			}
			if !hasMsg {
				msg = ""
			}
			return types.Result{Message: msg, Passed: passed}, true
		}
	}
	return types.Result{}, false
}

// LoadRegoDir registers every *.rego policy under dir. File names follow
// "service.kind.check_name.rego"; the check name is the full stem so names
// stay unique across kinds.
func LoadRegoDir(ctx context.Context, reg *Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read policy dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".rego")
		parts := strings.SplitN(stem, ".", 3)
		if len(parts) != 3 {
			return fmt.Errorf("policy file %s: name must be service.kind.check_name.rego", entry.Name())
		}
		source, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read policy %s: %w", entry.Name(), err)
		}
		check, includes, err := RegoCheck(ctx, stem, string(source))
		if err != nil {
			return err
		}
		def := &Definition{
			Service:  parts[0],
			Kind:     parts[1],
			Name:     stem,
			Includes: includes,
			Check:    check,
		}
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}
