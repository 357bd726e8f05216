package fn

import (
	"github.com/aqueductflow/aqueduct/pkg/jsonpath"
	"github.com/aqueductflow/aqueduct/pkg/types"
)

func init() {
	Register("length", Arity{Min: 1, Max: 1}, fnLength)
	Register("contains", Arity{Min: 2, Max: 2}, fnContains)
	Register("does_not_contain", Arity{Min: 2, Max: 2}, fnDoesNotContain)
	Register("join", Arity{Min: 2, Max: 2}, fnJoin)
	Register("flatten", Arity{Min: 1, Max: 1}, fnFlatten)
	Register("unique", Arity{Min: 1, Max: 1}, fnUnique)
	Register("zip", Arity{Min: 2, Max: -1}, fnZip)
	Register("concat", Arity{Min: 2, Max: -1}, fnConcat)
	Register("deduplicate", Arity{Min: 2, Max: 2}, fnDeduplicate)
	Register("jsonpath", Arity{Min: 2, Max: 2}, fnJsonpath)
}

func fnLength(args []types.Value) (types.Value, error) {
	switch args[0].Type() {
	case types.TypeString:
		return types.NewInt(int64(len([]rune(args[0].AsString())))), nil
	case types.TypeList:
		return types.NewInt(int64(len(args[0].AsList()))), nil
	case types.TypeMap:
		return types.NewInt(int64(args[0].AsMap().Len())), nil
	}
	return types.Null, types.NewTypeError("length requires a string, list, or map, got " + args[0].Type().String())
}

// fnContains uses membership semantics: element in list, substring in
// string, key in map.
func fnContains(args []types.Value) (types.Value, error) {
	return applyIn(args[1], args[0])
}

func fnDoesNotContain(args []types.Value) (types.Value, error) {
	v, err := applyIn(args[1], args[0])
	if err != nil {
		return types.Null, err
	}
	return types.NewBool(!v.AsBool()), nil
}

func fnJoin(args []types.Value) (types.Value, error) {
	items, err := argList("join", args, 0)
	if err != nil {
		return types.Null, err
	}
	sep, err := argString("join", args, 1)
	if err != nil {
		return types.Null, err
	}
	var sb []byte
	for i, item := range items {
		if i > 0 {
			sb = append(sb, sep...)
		}
		sb = append(sb, item.String()...)
	}
	return types.NewString(string(sb)), nil
}

// fnFlatten flattens one level of nesting; non-list elements pass
// through unchanged.
func fnFlatten(args []types.Value) (types.Value, error) {
	items, err := argList("flatten", args, 0)
	if err != nil {
		return types.Null, err
	}
	var out []types.Value
	for _, item := range items {
		if item.Type() == types.TypeList {
			out = append(out, item.AsList()...)
		} else {
			out = append(out, item)
		}
	}
	return types.NewList(out), nil
}

func fnUnique(args []types.Value) (types.Value, error) {
	items, err := argList("unique", args, 0)
	if err != nil {
		return types.Null, err
	}
	var out []types.Value
	for _, item := range items {
		seen := false
		for _, existing := range out {
			if existing.Equal(item) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, item)
		}
	}
	return types.NewList(out), nil
}

// fnZip pairs elements positionally across all argument lists, stopping
// at the shortest.
func fnZip(args []types.Value) (types.Value, error) {
	lists := make([][]types.Value, len(args))
	shortest := -1
	for i := range args {
		items, err := argList("zip", args, i)
		if err != nil {
			return types.Null, err
		}
		lists[i] = items
		if shortest < 0 || len(items) < shortest {
			shortest = len(items)
		}
	}
	out := make([]types.Value, 0, shortest)
	for i := 0; i < shortest; i++ {
		tuple := make([]types.Value, len(lists))
		for j := range lists {
			tuple[j] = lists[j][i]
		}
		out = append(out, types.NewList(tuple))
	}
	return types.NewList(out), nil
}

func fnConcat(args []types.Value) (types.Value, error) {
	var out []types.Value
	for i := range args {
		items, err := argList("concat", args, i)
		if err != nil {
			return types.Null, err
		}
		out = append(out, items...)
	}
	return types.NewList(out), nil
}

// fnDeduplicate removes duplicate maps from a list, keyed by the values
// at the given jsonpath key paths. The first occurrence wins.
func fnDeduplicate(args []types.Value) (types.Value, error) {
	items, err := argList("deduplicate", args, 0)
	if err != nil {
		return types.Null, err
	}
	keyPaths, err := argList("deduplicate", args, 1)
	if err != nil {
		return types.Null, err
	}

	var out []types.Value
	var seen []types.Value
	for _, item := range items {
		key := make([]types.Value, 0, len(keyPaths))
		for _, kp := range keyPaths {
			if kp.Type() != types.TypeString {
				return types.Null, types.NewTypeError("deduplicate key paths must be strings, got " + kp.Type().String())
			}
			v, err := jsonpath.Resolve(kp.AsString(), item, false)
			if err != nil {
				return types.Null, err
			}
			key = append(key, v)
		}
		keyVal := types.NewList(key)
		dup := false
		for _, existing := range seen {
			if existing.Equal(keyVal) {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, keyVal)
			out = append(out, item)
		}
	}
	return types.NewList(out), nil
}

// fnJsonpath resolves a path against an arbitrary operand in non-strict
// mode: a missing path yields null rather than an error.
func fnJsonpath(args []types.Value) (types.Value, error) {
	path, err := argString("jsonpath", args, 0)
	if err != nil {
		return types.Null, err
	}
	return jsonpath.Resolve(path, args[1], false)
}
