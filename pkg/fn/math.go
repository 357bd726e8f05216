package fn

import (
	"math"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

func init() {
	Register("add", Arity{Min: 2, Max: 2}, fnAdd)
	Register("sub", Arity{Min: 2, Max: 2}, fnSub)
	Register("mul", Arity{Min: 2, Max: 2}, fnMul)
	Register("div", Arity{Min: 2, Max: 2}, fnDiv)
	Register("mod", Arity{Min: 2, Max: 2}, fnMod)
	Register("pow", Arity{Min: 2, Max: 2}, fnPow)
	Register("sum", Arity{Min: 1, Max: 1}, fnSum)
	Register("round", Arity{Min: 1, Max: 2}, fnRound)
	Register("less_than", Arity{Min: 2, Max: 2}, comparator("<"))
	Register("less_than_or_equal", Arity{Min: 2, Max: 2}, comparator("<="))
	Register("greater_than", Arity{Min: 2, Max: 2}, comparator(">"))
	Register("greater_than_or_equal", Arity{Min: 2, Max: 2}, comparator(">="))
	Register("is_equal", Arity{Min: 2, Max: 2}, comparator("=="))
	Register("not_equal", Arity{Min: 2, Max: 2}, comparator("!="))
	Register("is_null", Arity{Min: 1, Max: 1}, fnIsNull)
	Register("not_null", Arity{Min: 1, Max: 1}, fnNotNull)
}

func fnAdd(args []types.Value) (types.Value, error) {
	return applyAdd(args[0], args[1])
}

func fnSub(args []types.Value) (types.Value, error) {
	return applyArithmetic("-", args[0], args[1])
}

func fnMul(args []types.Value) (types.Value, error) {
	return applyArithmetic("*", args[0], args[1])
}

func fnDiv(args []types.Value) (types.Value, error) {
	return applyArithmetic("/", args[0], args[1])
}

func fnMod(args []types.Value) (types.Value, error) {
	return applyArithmetic("%", args[0], args[1])
}

func fnPow(args []types.Value) (types.Value, error) {
	a, err := argNumber("pow", args, 0)
	if err != nil {
		return types.Null, err
	}
	b, err := argNumber("pow", args, 1)
	if err != nil {
		return types.Null, err
	}
	result := math.Pow(a, b)
	if args[0].Type() == types.TypeInt && args[1].Type() == types.TypeInt && b >= 0 {
		return types.NewInt(int64(result)), nil
	}
	return types.NewFloat(result), nil
}

func fnSum(args []types.Value) (types.Value, error) {
	items, err := argList("sum", args, 0)
	if err != nil {
		return types.Null, err
	}
	var total float64
	allInt := true
	for _, item := range items {
		n, ok := item.AsNumber()
		if !ok {
			return types.Null, types.NewTypeError("sum requires a list of numbers, got " + item.Type().String())
		}
		if item.Type() != types.TypeInt {
			allInt = false
		}
		total += n
	}
	if allInt {
		return types.NewInt(int64(total)), nil
	}
	return types.NewFloat(total), nil
}

func fnRound(args []types.Value) (types.Value, error) {
	n, err := argNumber("round", args, 0)
	if err != nil {
		return types.Null, err
	}
	digits := int64(0)
	if len(args) == 2 {
		digits, err = argInt("round", args, 1)
		if err != nil {
			return types.Null, err
		}
	}
	if digits == 0 {
		return types.NewInt(int64(math.Round(n))), nil
	}
	scale := math.Pow(10, float64(digits))
	return types.NewFloat(math.Round(n*scale) / scale), nil
}

func comparator(op string) Func {
	return func(args []types.Value) (types.Value, error) {
		return ApplyBinary(op, args[0], args[1])
	}
}

func fnIsNull(args []types.Value) (types.Value, error) {
	return types.NewBool(args[0].IsNull()), nil
}

func fnNotNull(args []types.Value) (types.Value, error) {
	return types.NewBool(!args[0].IsNull()), nil
}
