package fn

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

// ApplyBinary evaluates a binary operator over two already-evaluated
// operands. Logical operators are included here because both sides are
// evaluated before the operator is applied.
func ApplyBinary(op string, left, right types.Value) (types.Value, error) {
	switch op {
	case "==":
		return types.NewBool(left.Equal(right)), nil
	case "!=":
		return types.NewBool(!left.Equal(right)), nil
	case "<", "<=", ">", ">=":
		return compareOrdered(op, left, right)
	case "&&":
		return types.NewBool(left.Truthy() && right.Truthy()), nil
	case "||":
		return types.NewBool(left.Truthy() || right.Truthy()), nil
	case "+":
		return applyAdd(left, right)
	case "-", "*", "/", "%":
		return applyArithmetic(op, left, right)
	case "in":
		return applyIn(left, right)
	case "not in":
		v, err := applyIn(left, right)
		if err != nil {
			return types.Null, err
		}
		return types.NewBool(!v.AsBool()), nil
	case "is":
		return types.NewBool(left.Equal(right)), nil
	case "is not":
		return types.NewBool(!left.Equal(right)), nil
	}
	return types.Null, types.NewTypeError(fmt.Sprintf("unsupported binary operator %q", op))
}

// ApplyUnary evaluates a unary operator.
func ApplyUnary(op string, v types.Value) (types.Value, error) {
	switch op {
	case "!":
		return types.NewBool(!v.Truthy()), nil
	case "-":
		switch v.Type() {
		case types.TypeInt:
			return types.NewInt(-v.AsInt()), nil
		case types.TypeFloat:
			return types.NewFloat(-v.AsFloat()), nil
		}
		return types.Null, types.NewTypeError("unary - requires a number, got " + v.Type().String())
	}
	return types.Null, types.NewTypeError(fmt.Sprintf("unsupported unary operator %q", op))
}

func compareOrdered(op string, left, right types.Value) (types.Value, error) {
	if a, ok := left.AsNumber(); ok {
		if b, ok := right.AsNumber(); ok {
			switch op {
			case "<":
				return types.NewBool(a < b), nil
			case "<=":
				return types.NewBool(a <= b), nil
			case ">":
				return types.NewBool(a > b), nil
			case ">=":
				return types.NewBool(a >= b), nil
			}
		}
	}
	if left.Type() == types.TypeString && right.Type() == types.TypeString {
		cmp := strings.Compare(left.AsString(), right.AsString())
		switch op {
		case "<":
			return types.NewBool(cmp < 0), nil
		case "<=":
			return types.NewBool(cmp <= 0), nil
		case ">":
			return types.NewBool(cmp > 0), nil
		case ">=":
			return types.NewBool(cmp >= 0), nil
		}
	}
	return types.Null, types.NewTypeError(fmt.Sprintf("cannot compare %s and %s with %s", left.Type(), right.Type(), op))
}

// applyAdd handles + which is overloaded for numbers, string
// concatenation, and list concatenation.
func applyAdd(left, right types.Value) (types.Value, error) {
	if left.Type() == types.TypeInt && right.Type() == types.TypeInt {
		return types.NewInt(left.AsInt() + right.AsInt()), nil
	}
	if a, ok := left.AsNumber(); ok {
		if b, ok := right.AsNumber(); ok {
			return types.NewFloat(a + b), nil
		}
	}
	if left.Type() == types.TypeString && right.Type() == types.TypeString {
		return types.NewString(left.AsString() + right.AsString()), nil
	}
	if left.Type() == types.TypeList && right.Type() == types.TypeList {
		merged := make([]types.Value, 0, len(left.AsList())+len(right.AsList()))
		merged = append(merged, left.AsList()...)
		merged = append(merged, right.AsList()...)
		return types.NewList(merged), nil
	}
	return types.Null, types.NewTypeError(fmt.Sprintf("cannot add %s and %s", left.Type(), right.Type()))
}

func applyArithmetic(op string, left, right types.Value) (types.Value, error) {
	a, aOk := left.AsNumber()
	b, bOk := right.AsNumber()
	if !aOk || !bOk {
		return types.Null, types.NewTypeError(fmt.Sprintf("operator %s requires numbers, got %s and %s", op, left.Type(), right.Type()))
	}

	bothInt := left.Type() == types.TypeInt && right.Type() == types.TypeInt

	switch op {
	case "-":
		if bothInt {
			return types.NewInt(left.AsInt() - right.AsInt()), nil
		}
		return types.NewFloat(a - b), nil
	case "*":
		if bothInt {
			return types.NewInt(left.AsInt() * right.AsInt()), nil
		}
		return types.NewFloat(a * b), nil
	case "/":
		if b == 0 {
			return types.Null, types.NewZeroDivisionError()
		}
		// Division always yields a float.
		return types.NewFloat(a / b), nil
	case "%":
		if b == 0 {
			return types.Null, types.NewZeroDivisionError()
		}
		if bothInt {
			return types.NewInt(left.AsInt() % right.AsInt()), nil
		}
		return types.NewFloat(math.Mod(a, b)), nil
	}
	return types.Null, types.NewTypeError(fmt.Sprintf("unsupported arithmetic operator %q", op))
}

// applyIn implements membership: element in list, substring in string,
// key in map.
func applyIn(left, right types.Value) (types.Value, error) {
	switch right.Type() {
	case types.TypeList:
		for _, item := range right.AsList() {
			if item.Equal(left) {
				return types.NewBool(true), nil
			}
		}
		return types.NewBool(false), nil
	case types.TypeString:
		if left.Type() != types.TypeString {
			return types.Null, types.NewTypeError("left side of 'in' must be a string when the right side is a string")
		}
		return types.NewBool(strings.Contains(right.AsString(), left.AsString())), nil
	case types.TypeMap:
		if left.Type() != types.TypeString {
			return types.NewBool(false), nil
		}
		_, ok := right.AsMap().Get(left.AsString())
		return types.NewBool(ok), nil
	}
	return types.Null, types.NewTypeError("right side of 'in' must be a list, string, or map, got " + right.Type().String())
}

// Cast coerces a value to a named type (int, float, str, bool). Both the
// functional form int(x) and the trailing form x -> int share this table.
func Cast(v types.Value, target string) (types.Value, error) {
	switch target {
	case "int":
		return castInt(v)
	case "float":
		return castFloat(v)
	case "str":
		return types.NewString(v.String()), nil
	case "bool":
		return castBool(v), nil
	}
	return types.Null, types.NewValueError(fmt.Sprintf("unknown cast type %q", target))
}

func castInt(v types.Value) (types.Value, error) {
	switch v.Type() {
	case types.TypeInt:
		return v, nil
	case types.TypeFloat:
		return types.NewInt(int64(v.AsFloat())), nil
	case types.TypeBool:
		if v.AsBool() {
			return types.NewInt(1), nil
		}
		return types.NewInt(0), nil
	case types.TypeString:
		s := strings.TrimSpace(v.AsString())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return types.NewInt(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return types.NewInt(int64(f)), nil
		}
	}
	return types.Null, types.NewBadCastError(v, "int")
}

func castFloat(v types.Value) (types.Value, error) {
	switch v.Type() {
	case types.TypeFloat:
		return v, nil
	case types.TypeInt:
		return types.NewFloat(float64(v.AsInt())), nil
	case types.TypeBool:
		if v.AsBool() {
			return types.NewFloat(1), nil
		}
		return types.NewFloat(0), nil
	case types.TypeString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.AsString()), 64); err == nil {
			return types.NewFloat(f), nil
		}
	}
	return types.Null, types.NewBadCastError(v, "float")
}

// castBool never fails. Strings coerce true only for "true" and "1",
// case-insensitively; everything else follows truthiness.
func castBool(v types.Value) types.Value {
	if v.Type() == types.TypeString {
		s := strings.ToLower(strings.TrimSpace(v.AsString()))
		return types.NewBool(s == "true" || s == "1")
	}
	return types.NewBool(v.Truthy())
}
