package fn

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

func init() {
	Register("lowercase", Arity{Min: 1, Max: 1}, fnLowercase)
	Register("uppercase", Arity{Min: 1, Max: 1}, fnUppercase)
	Register("capitalize", Arity{Min: 1, Max: 1}, fnCapitalize)
	Register("split", Arity{Min: 2, Max: 2}, fnSplit)
	Register("strip", Arity{Min: 1, Max: 2}, fnStrip)
	Register("replace", Arity{Min: 3, Max: 3}, fnReplace)
	Register("startswith", Arity{Min: 2, Max: 2}, fnStartswith)
	Register("endswith", Arity{Min: 2, Max: 2}, fnEndswith)
	Register("format", Arity{Min: 1, Max: -1}, fnFormat)
	Register("slice", Arity{Min: 2, Max: 3}, fnSlice)
	Register("regex_extract", Arity{Min: 2, Max: 2}, fnRegexExtract)
	Register("regex_match", Arity{Min: 2, Max: 2}, fnRegexMatch)
}

func fnLowercase(args []types.Value) (types.Value, error) {
	s, err := argString("lowercase", args, 0)
	if err != nil {
		return types.Null, err
	}
	return types.NewString(strings.ToLower(s)), nil
}

func fnUppercase(args []types.Value) (types.Value, error) {
	s, err := argString("uppercase", args, 0)
	if err != nil {
		return types.Null, err
	}
	return types.NewString(strings.ToUpper(s)), nil
}

func fnCapitalize(args []types.Value) (types.Value, error) {
	s, err := argString("capitalize", args, 0)
	if err != nil {
		return types.Null, err
	}
	if s == "" {
		return args[0], nil
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return types.NewString(string(runes)), nil
}

func fnSplit(args []types.Value) (types.Value, error) {
	s, err := argString("split", args, 0)
	if err != nil {
		return types.Null, err
	}
	sep, err := argString("split", args, 1)
	if err != nil {
		return types.Null, err
	}
	parts := strings.Split(s, sep)
	items := make([]types.Value, len(parts))
	for i, p := range parts {
		items[i] = types.NewString(p)
	}
	return types.NewList(items), nil
}

func fnStrip(args []types.Value) (types.Value, error) {
	s, err := argString("strip", args, 0)
	if err != nil {
		return types.Null, err
	}
	if len(args) == 2 {
		cutset, err := argString("strip", args, 1)
		if err != nil {
			return types.Null, err
		}
		return types.NewString(strings.Trim(s, cutset)), nil
	}
	return types.NewString(strings.TrimSpace(s)), nil
}

func fnReplace(args []types.Value) (types.Value, error) {
	s, err := argString("replace", args, 0)
	if err != nil {
		return types.Null, err
	}
	old, err := argString("replace", args, 1)
	if err != nil {
		return types.Null, err
	}
	repl, err := argString("replace", args, 2)
	if err != nil {
		return types.Null, err
	}
	return types.NewString(strings.ReplaceAll(s, old, repl)), nil
}

func fnStartswith(args []types.Value) (types.Value, error) {
	s, err := argString("startswith", args, 0)
	if err != nil {
		return types.Null, err
	}
	prefix, err := argString("startswith", args, 1)
	if err != nil {
		return types.Null, err
	}
	return types.NewBool(strings.HasPrefix(s, prefix)), nil
}

func fnEndswith(args []types.Value) (types.Value, error) {
	s, err := argString("endswith", args, 0)
	if err != nil {
		return types.Null, err
	}
	suffix, err := argString("endswith", args, 1)
	if err != nil {
		return types.Null, err
	}
	return types.NewBool(strings.HasSuffix(s, suffix)), nil
}

// fnFormat substitutes {} placeholders positionally, python-style.
func fnFormat(args []types.Value) (types.Value, error) {
	template, err := argString("format", args, 0)
	if err != nil {
		return types.Null, err
	}
	var sb strings.Builder
	argIdx := 1
	for i := 0; i < len(template); i++ {
		if template[i] == '{' && i+1 < len(template) && template[i+1] == '}' {
			if argIdx >= len(args) {
				return types.Null, types.NewValueError(fmt.Sprintf("format has more placeholders than arguments (%d given)", len(args)-1))
			}
			sb.WriteString(args[argIdx].String())
			argIdx++
			i++
			continue
		}
		sb.WriteByte(template[i])
	}
	return types.NewString(sb.String()), nil
}

// fnSlice works on both strings and lists: slice(value, start [, length]).
func fnSlice(args []types.Value) (types.Value, error) {
	start, err := argInt("slice", args, 1)
	if err != nil {
		return types.Null, err
	}
	length := int64(-1)
	if len(args) == 3 {
		length, err = argInt("slice", args, 2)
		if err != nil {
			return types.Null, err
		}
	}

	clamp := func(n int64, size int) (int, int) {
		lo := int(n)
		if lo < 0 {
			lo = size + lo
		}
		if lo < 0 {
			lo = 0
		}
		if lo > size {
			lo = size
		}
		hi := size
		if length >= 0 {
			hi = lo + int(length)
			if hi > size {
				hi = size
			}
		}
		return lo, hi
	}

	switch args[0].Type() {
	case types.TypeString:
		runes := []rune(args[0].AsString())
		lo, hi := clamp(start, len(runes))
		return types.NewString(string(runes[lo:hi])), nil
	case types.TypeList:
		items := args[0].AsList()
		lo, hi := clamp(start, len(items))
		return types.NewList(items[lo:hi]), nil
	}
	return types.Null, types.NewTypeError("slice requires a string or list, got " + args[0].Type().String())
}

// fnRegexExtract returns the first match of the pattern, preferring the
// first capture group when one exists. No match yields null.
func fnRegexExtract(args []types.Value) (types.Value, error) {
	pattern, err := argString("regex_extract", args, 0)
	if err != nil {
		return types.Null, err
	}
	s, err := argString("regex_extract", args, 1)
	if err != nil {
		return types.Null, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return types.Null, types.NewValueError("invalid regex pattern: " + err.Error())
	}
	groups := re.FindStringSubmatch(s)
	switch {
	case groups == nil:
		return types.Null, nil
	case len(groups) > 1:
		return types.NewString(groups[1]), nil
	default:
		return types.NewString(groups[0]), nil
	}
}

func fnRegexMatch(args []types.Value) (types.Value, error) {
	pattern, err := argString("regex_match", args, 0)
	if err != nil {
		return types.Null, err
	}
	s, err := argString("regex_match", args, 1)
	if err != nil {
		return types.Null, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return types.Null, types.NewValueError("invalid regex pattern: " + err.Error())
	}
	return types.NewBool(re.MatchString(s)), nil
}
