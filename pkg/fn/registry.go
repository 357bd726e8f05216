// Package fn implements the FN.* builtin function library of the
// template expression language: the registry, the operator and typecast
// tables, and the builtin implementations grouped by category.
package fn

import (
	"fmt"
	"sort"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

// Func is the implementation signature for a builtin function.
type Func func(args []types.Value) (types.Value, error)

// Arity declares the accepted positional argument count for a builtin.
// Max < 0 means variadic (no upper bound).
type Arity struct {
	Min int
	Max int
}

// Accepts reports whether n positional arguments satisfy the arity.
func (a Arity) Accepts(n int) bool {
	if n < a.Min {
		return false
	}
	return a.Max < 0 || n <= a.Max
}

type entry struct {
	fn    Func
	arity Arity
}

var registry = map[string]entry{}

// Register adds a builtin to the registry. Panics on duplicate names so
// collisions surface at startup.
func Register(name string, arity Arity, fn Func) {
	if _, exists := registry[name]; exists {
		panic("duplicate function registration: " + name)
	}
	registry[name] = entry{fn: fn, arity: arity}
}

// Lookup returns the arity of a registered builtin. Used by the static
// validator to check calls without evaluating them.
func Lookup(name string) (Arity, bool) {
	e, ok := registry[name]
	return e.arity, ok
}

// Names returns all registered function names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes a builtin with the given arguments, checking arity first.
func Call(name string, args []types.Value) (types.Value, error) {
	e, ok := registry[name]
	if !ok {
		return types.Null, types.NewUnknownFunctionError(name)
	}
	if !e.arity.Accepts(len(args)) {
		return types.Null, types.NewArityError(name, e.arity.Min, e.arity.Max, len(args))
	}
	return e.fn(args)
}

// CallMapped invokes a builtin once per element, broadcasting over list
// arguments. All list arguments are zipped positionally and iteration
// stops at the shortest list; scalar arguments repeat for every call.
// At least one argument must be a list.
func CallMapped(name string, args []types.Value) (types.Value, error) {
	e, ok := registry[name]
	if !ok {
		return types.Null, types.NewUnknownFunctionError(name)
	}
	if !e.arity.Accepts(len(args)) {
		return types.Null, types.NewArityError(name, e.arity.Min, e.arity.Max, len(args))
	}

	n := -1
	for _, arg := range args {
		if arg.Type() == types.TypeList {
			if l := len(arg.AsList()); n < 0 || l < n {
				n = l
			}
		}
	}
	if n < 0 {
		return types.Null, types.NewTypeError("mapped call to " + name + " requires at least one list argument")
	}

	results := make([]types.Value, 0, n)
	callArgs := make([]types.Value, len(args))
	for i := 0; i < n; i++ {
		for j, arg := range args {
			if arg.Type() == types.TypeList {
				callArgs[j] = arg.AsList()[i]
			} else {
				callArgs[j] = arg
			}
		}
		result, err := e.fn(callArgs)
		if err != nil {
			return types.Null, err
		}
		results = append(results, result)
	}
	return types.NewList(results), nil
}

// argString extracts a string argument or fails with a TypeError naming
// the function and position.
func argString(name string, args []types.Value, i int) (string, error) {
	if args[i].Type() != types.TypeString {
		return "", types.NewTypeError(fmt.Sprintf("%s argument %d must be a string, got %s", name, i+1, args[i].Type()))
	}
	return args[i].AsString(), nil
}

// argList extracts a list argument.
func argList(name string, args []types.Value, i int) ([]types.Value, error) {
	if args[i].Type() != types.TypeList {
		return nil, types.NewTypeError(fmt.Sprintf("%s argument %d must be a list, got %s", name, i+1, args[i].Type()))
	}
	return args[i].AsList(), nil
}

// argNumber extracts a numeric argument as float64.
func argNumber(name string, args []types.Value, i int) (float64, error) {
	f, ok := args[i].AsNumber()
	if !ok {
		return 0, types.NewTypeError(fmt.Sprintf("%s argument %d must be a number, got %s", name, i+1, args[i].Type()))
	}
	return f, nil
}

// argInt extracts an integer argument.
func argInt(name string, args []types.Value, i int) (int64, error) {
	if args[i].Type() != types.TypeInt {
		return 0, types.NewTypeError(fmt.Sprintf("%s argument %d must be an int, got %s", name, i+1, args[i].Type()))
	}
	return args[i].AsInt(), nil
}
