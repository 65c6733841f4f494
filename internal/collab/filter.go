package collab

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/store"
)

// editFilter is a compiled CEL admission rule. A disabled filter admits
// everything.
//
// Variables: client_id, scope, room_id, path, revision, size (bytes of the
// wire operation), steps, inserted (all inserted text), deleted (code
// points removed).
type editFilter struct {
	prog    cel.Program
	enabled bool
}

func newEditFilter(expr string) (editFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return editFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("client_id", cel.StringType),
		cel.Variable("scope", cel.StringType),
		cel.Variable("room_id", cel.IntType),
		cel.Variable("path", cel.StringType),
		cel.Variable("revision", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("steps", cel.IntType),
		cel.Variable("inserted", cel.StringType),
		cel.Variable("deleted", cel.IntType),
	)
	if err != nil {
		return editFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return editFilter{}, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return editFilter{}, fmt.Errorf("edit filter must be boolean, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return editFilter{}, err
	}
	return editFilter{prog: prog, enabled: true}, nil
}

// Eval reports whether the edit is admitted. Evaluation errors reject.
func (f editFilter) Eval(key store.DocKey, clientID string, revision, size int, op *ot.Operation) bool {
	if !f.enabled {
		return true
	}
	var inserted strings.Builder
	deleted := 0
	steps := op.Steps()
	for _, s := range steps {
		switch s.Kind {
		case ot.KindInsert:
			inserted.WriteString(s.Text)
		case ot.KindDelete:
			deleted += s.N
		}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"client_id": clientID,
		"scope":     string(key.Scope),
		"room_id":   key.Room,
		"path":      key.Path,
		"revision":  int64(revision),
		"size":      int64(size),
		"steps":     int64(len(steps)),
		"inserted":  inserted.String(),
		"deleted":   int64(deleted),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
