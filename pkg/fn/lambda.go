package fn

import (
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aqueductflow/aqueduct/pkg/jsonpath"
	"github.com/aqueductflow/aqueduct/pkg/types"
)

func init() {
	Register("apply", Arity{Min: 2, Max: 2}, fnApply)
	Register("filter", Arity{Min: 2, Max: 2}, fnFilter)
	Register("map", Arity{Min: 2, Max: 2}, fnMap)
	Register("is_in", Arity{Min: 2, Max: 3}, fnIsIn)
}

// identRe matches a single valid lambda parameter name.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// deniedRe rejects lambda bodies that try to reach outside the sandbox.
// Dunder access is rejected wholesale.
var deniedRe = regexp.MustCompile(`\b(eval|exec|import|os|sys|locals|globals|open|compile)\b|__`)

type lambda struct {
	param   string
	program *vm.Program
	source  string
}

var lambdaCache = struct {
	sync.RWMutex
	programs map[string]*lambda
}{programs: make(map[string]*lambda)}

// compileLambda parses and compiles a "lambda x: body" string. Compiled
// programs are cached by source text.
func compileLambda(source string) (*lambda, error) {
	lambdaCache.RLock()
	cached, ok := lambdaCache.programs[source]
	lambdaCache.RUnlock()
	if ok {
		return cached, nil
	}

	trimmed := strings.TrimSpace(source)
	if !strings.HasPrefix(trimmed, "lambda ") && !strings.HasPrefix(trimmed, "lambda:") {
		return nil, types.NewValueError("lambda expression must start with \"lambda\"")
	}
	rest := strings.TrimPrefix(trimmed, "lambda")
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return nil, types.NewValueError("lambda expression is missing \":\" before the body")
	}

	param := strings.TrimSpace(rest[:colon])
	if !identRe.MatchString(param) {
		return nil, types.NewValueError("lambda must declare exactly one parameter")
	}

	body := strings.TrimSpace(rest[colon+1:])
	if body == "" {
		return nil, types.NewValueError("lambda body is empty")
	}
	if deniedRe.MatchString(body) {
		return nil, types.NewValueError("lambda body uses a restricted construct")
	}

	program, err := expr.Compile(body, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, types.NewValueError("invalid lambda body: " + err.Error())
	}

	l := &lambda{param: param, program: program, source: source}
	lambdaCache.Lock()
	lambdaCache.programs[source] = l
	lambdaCache.Unlock()
	return l, nil
}

// invoke runs the lambda against a single value. Runtime failures are
// reported as script errors, distinct from compile failures.
func (l *lambda) invoke(v types.Value) (types.Value, error) {
	env := map[string]interface{}{
		l.param: v.ToGo(),
		"jsonpath": func(path string, operand interface{}) interface{} {
			result, err := jsonpath.Resolve(path, types.FromGo(operand), false)
			if err != nil {
				return nil
			}
			return result.ToGo()
		},
	}
	out, err := expr.Run(l.program, env)
	if err != nil {
		return types.Null, types.NewScriptError(l.source, err.Error())
	}
	return types.FromGo(out), nil
}

// fnApply runs a lambda over a value. A list input maps the lambda over
// every element; any other input applies it once.
func fnApply(args []types.Value) (types.Value, error) {
	source, err := argString("apply", args, 1)
	if err != nil {
		return types.Null, err
	}
	l, err := compileLambda(source)
	if err != nil {
		return types.Null, err
	}

	if args[0].Type() == types.TypeList {
		items := args[0].AsList()
		out := make([]types.Value, len(items))
		for i, item := range items {
			out[i], err = l.invoke(item)
			if err != nil {
				return types.Null, err
			}
		}
		return types.NewList(out), nil
	}
	return l.invoke(args[0])
}

// fnMap maps a lambda over the elements of a list. Unlike apply, the
// input must be a list.
func fnMap(args []types.Value) (types.Value, error) {
	items, err := argList("map", args, 0)
	if err != nil {
		return types.Null, err
	}
	source, err := argString("map", args, 1)
	if err != nil {
		return types.Null, err
	}
	l, err := compileLambda(source)
	if err != nil {
		return types.Null, err
	}

	out := make([]types.Value, len(items))
	for i, item := range items {
		out[i], err = l.invoke(item)
		if err != nil {
			return types.Null, err
		}
	}
	return types.NewList(out), nil
}

// fnIsIn reports whether a value occurs in a list. An optional lambda
// projects each element before comparison.
func fnIsIn(args []types.Value) (types.Value, error) {
	items, err := argList("is_in", args, 1)
	if err != nil {
		return types.Null, err
	}

	var l *lambda
	if len(args) == 3 {
		source, err := argString("is_in", args, 2)
		if err != nil {
			return types.Null, err
		}
		if l, err = compileLambda(source); err != nil {
			return types.Null, err
		}
	}

	for _, item := range items {
		candidate := item
		if l != nil {
			candidate, err = l.invoke(item)
			if err != nil {
				return types.Null, err
			}
		}
		if args[0].Equal(candidate) {
			return types.NewBool(true), nil
		}
	}
	return types.NewBool(false), nil
}

// fnFilter keeps the list elements for which the lambda is truthy.
func fnFilter(args []types.Value) (types.Value, error) {
	items, err := argList("filter", args, 0)
	if err != nil {
		return types.Null, err
	}
	source, err := argString("filter", args, 1)
	if err != nil {
		return types.Null, err
	}
	l, err := compileLambda(source)
	if err != nil {
		return types.Null, err
	}

	var out []types.Value
	for _, item := range items {
		keep, err := l.invoke(item)
		if err != nil {
			return types.Null, err
		}
		if keep.Truthy() {
			out = append(out, item)
		}
	}
	return types.NewList(out), nil
}
