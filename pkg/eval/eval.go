// Package eval reduces parsed template expressions to runtime values
// against an operand: the map of context data (ACTIONS, SECRETS, INPUTS,
// ENV, TRIGGER, var) available at evaluation time.
package eval

import (
	"github.com/aqueductflow/aqueduct/pkg/expr"
	"github.com/aqueductflow/aqueduct/pkg/fn"
	"github.com/aqueductflow/aqueduct/pkg/jsonpath"
	"github.com/aqueductflow/aqueduct/pkg/types"
)

// Evaluator evaluates parse trees against a fixed operand. In strict
// mode a context path with no match is an error; in non-strict mode it
// resolves to null.
type Evaluator struct {
	operand types.Value
	strict  bool
}

// New creates a strict evaluator over the operand.
func New(operand map[string]types.Value) *Evaluator {
	return &Evaluator{operand: types.NewMapFromGoMap(operand), strict: true}
}

// NewNonStrict creates an evaluator that resolves missing context paths
// to null instead of failing.
func NewNonStrict(operand map[string]types.Value) *Evaluator {
	return &Evaluator{operand: types.NewMapFromGoMap(operand), strict: false}
}

// Evaluate parses and evaluates an expression string in strict mode.
// The returned error carries the source expression for reporting.
func Evaluate(input string, operand map[string]types.Value) (types.Value, error) {
	node, err := expr.Parse(input)
	if err != nil {
		return types.Null, err
	}
	v, err := New(operand).Eval(node)
	if err != nil {
		if evalErr, ok := err.(*types.EvalError); ok && evalErr.Expression == "" {
			evalErr.Expression = input
		}
		return types.Null, err
	}
	return v, nil
}

// IterableExpr is the result of evaluating a root-level iterator
// expression (`for var.x in collection`): the loop variable path and the
// materialized collection.
type IterableExpr struct {
	VarPath    string
	Collection []types.Value
}

// EvalIterator evaluates an iterator node into its loop binding. The
// collection must reduce to a list and the loop variable must live in
// the var context.
func (e *Evaluator) EvalIterator(node *expr.IteratorNode) (*IterableExpr, error) {
	if len(node.VarPath) < 4 || node.VarPath[:4] != "var." {
		return nil, types.NewEvalError("iterator variable must be in the var context, got "+node.VarPath, types.TagValueError)
	}
	collection, err := e.Eval(node.Collection)
	if err != nil {
		return nil, err
	}
	if collection.Type() != types.TypeList {
		return nil, e.fail(types.NewNotIterableError(collection), node)
	}
	return &IterableExpr{VarPath: node.VarPath, Collection: collection.AsList()}, nil
}

// Eval evaluates a parse tree to a value.
func (e *Evaluator) Eval(node expr.Node) (types.Value, error) {
	switch n := node.(type) {
	case *expr.LiteralNode:
		return literalValue(n), nil

	case *expr.ContextNode:
		return e.evalContext(n)

	case *expr.BinaryNode:
		// Both sides evaluate before the operator applies; && and ||
		// do not short-circuit.
		left, err := e.Eval(n.Left)
		if err != nil {
			return types.Null, err
		}
		right, err := e.Eval(n.Right)
		if err != nil {
			return types.Null, err
		}
		v, err := fn.ApplyBinary(n.Op, left, right)
		if err != nil {
			return types.Null, e.fail(err, n)
		}
		return v, nil

	case *expr.UnaryNode:
		operand, err := e.Eval(n.Operand)
		if err != nil {
			return types.Null, err
		}
		v, err := fn.ApplyUnary(n.Op, operand)
		if err != nil {
			return types.Null, e.fail(err, n)
		}
		return v, nil

	case *expr.TernaryNode:
		// The condition decides which branch evaluates; the untaken
		// branch is never touched.
		cond, err := e.Eval(n.Cond)
		if err != nil {
			return types.Null, err
		}
		if cond.Truthy() {
			return e.Eval(n.True)
		}
		return e.Eval(n.False)

	case *expr.CastNode:
		inner, err := e.Eval(n.Expr)
		if err != nil {
			return types.Null, err
		}
		v, err := fn.Cast(inner, n.Type)
		if err != nil {
			return types.Null, e.fail(err, n)
		}
		return v, nil

	case *expr.TrailingCastNode:
		inner, err := e.Eval(n.Expr)
		if err != nil {
			return types.Null, err
		}
		v, err := fn.Cast(inner, n.Type)
		if err != nil {
			return types.Null, e.fail(err, n)
		}
		return v, nil

	case *expr.FunctionNode:
		args := make([]types.Value, len(n.Args))
		for i, argNode := range n.Args {
			v, err := e.Eval(argNode)
			if err != nil {
				return types.Null, err
			}
			args[i] = v
		}
		var v types.Value
		var err error
		if n.Mapped {
			v, err = fn.CallMapped(n.Name, args)
		} else {
			v, err = fn.Call(n.Name, args)
		}
		if err != nil {
			return types.Null, e.fail(err, n)
		}
		return v, nil

	case *expr.ListNode:
		items := make([]types.Value, len(n.Elements))
		for i, elem := range n.Elements {
			v, err := e.Eval(elem)
			if err != nil {
				return types.Null, err
			}
			items[i] = v
		}
		return types.NewList(items), nil

	case *expr.DictNode:
		m := types.NewOrderedMap()
		for i := range n.Keys {
			key, err := e.Eval(n.Keys[i])
			if err != nil {
				return types.Null, err
			}
			if key.Type() != types.TypeString {
				return types.Null, e.fail(types.NewTypeError("dict keys must be strings, got "+key.Type().String()), n)
			}
			val, err := e.Eval(n.Values[i])
			if err != nil {
				return types.Null, err
			}
			m.Set(key.AsString(), val)
		}
		return types.NewMap(m), nil

	case *expr.IteratorNode:
		return types.Null, types.NewEvalError("iterator expressions are only valid as a loop collection", types.TagValueError)
	}

	return types.Null, types.NewEvalError("unsupported expression node", types.TagValueError)
}

// evalContext resolves a context reference through the path resolver.
// The context keyword becomes the leading path segment against the
// whole operand.
func (e *Evaluator) evalContext(n *expr.ContextNode) (types.Value, error) {
	if n.Kind == expr.ContextSecrets {
		segments, ok := n.AttrSegments()
		if !ok || len(segments) != 2 {
			return types.Null, e.fail(types.NewSecretPathError(n.Kind.Keyword()+n.Path), n)
		}
	}

	fullPath := n.Kind.Keyword() + n.Path
	v, err := jsonpath.Resolve(fullPath, e.operand, e.strict)
	if err != nil {
		return types.Null, e.fail(err, n)
	}
	return v, nil
}

// fail attaches the failing tree fragment to an evaluation error.
func (e *Evaluator) fail(err error, node expr.Node) error {
	if evalErr, ok := err.(*types.EvalError); ok && evalErr.Fragment == "" {
		evalErr.Fragment = expr.Format(node)
	}
	return err
}

func literalValue(n *expr.LiteralNode) types.Value {
	switch n.TokenType {
	case expr.TokenInt:
		return types.NewInt(n.IntVal)
	case expr.TokenFloat:
		return types.NewFloat(n.FloatVal)
	case expr.TokenString:
		return types.NewString(n.StrVal)
	case expr.TokenTrue:
		return types.NewBool(true)
	case expr.TokenFalse:
		return types.NewBool(false)
	case expr.TokenNone:
		return types.Null
	}
	return types.Null
}
