package expr

import (
	"fmt"
	"strings"
)

// Node is the interface for all expression parse tree nodes. Trees are
// immutable once parsed and exclusively owned by the call that produced
// them.
type Node interface {
	nodeKind() string
}

// ContextKind identifies which slice of the operand a context node
// references.
type ContextKind int

const (
	ContextActions ContextKind = iota
	ContextSecrets
	ContextInputs
	ContextEnv
	ContextLocalVars
	ContextTrigger
	ContextTemplateInputs
	ContextTemplateSteps
)

// Keyword returns the operand key / source keyword for a context kind.
func (k ContextKind) Keyword() string {
	switch k {
	case ContextActions:
		return "ACTIONS"
	case ContextSecrets:
		return "SECRETS"
	case ContextInputs:
		return "INPUTS"
	case ContextEnv:
		return "ENV"
	case ContextLocalVars:
		return "var"
	case ContextTrigger:
		return "TRIGGER"
	case ContextTemplateInputs:
		return "inputs"
	case ContextTemplateSteps:
		return "steps"
	default:
		return "unknown"
	}
}

// LiteralNode represents a literal value (int, float, string, bool, None).
type LiteralNode struct {
	TokenType TokenType
	IntVal    int64
	FloatVal  float64
	StrVal    string
	BoolVal   bool
}

func (n *LiteralNode) nodeKind() string { return "literal" }

// ContextNode represents a context reference such as ACTIONS.ref.result
// or SECRETS.name.KEY. Path holds the jsonpath-style segments following
// the keyword, in textual form (e.g. ".ref.result[0]"); it is empty only
// for a bare TRIGGER reference.
type ContextNode struct {
	Kind ContextKind
	Path string
}

func (n *ContextNode) nodeKind() string { return "context" }

// AttrSegments splits a dot-only path into its attribute names. The
// second return is false if the path contains bracket segments or an
// empty attribute.
func (n *ContextNode) AttrSegments() ([]string, bool) {
	if n.Path == "" {
		return nil, true
	}
	if strings.ContainsAny(n.Path, "[]") {
		return nil, false
	}
	trimmed := strings.TrimPrefix(n.Path, ".")
	parts := strings.Split(trimmed, ".")
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}

// BinaryNode represents a binary operation (a + b, x == y, a && b,
// x in xs). Op is the source operator text.
type BinaryNode struct {
	Op    string
	Left  Node
	Right Node
}

func (n *BinaryNode) nodeKind() string { return "binary_op" }

// UnaryNode represents a unary operation (-x, !x).
type UnaryNode struct {
	Op      string
	Operand Node
}

func (n *UnaryNode) nodeKind() string { return "unary_op" }

// TernaryNode represents `true_branch if condition else false_branch`.
// Exactly three children, in that order.
type TernaryNode struct {
	True  Node
	Cond  Node
	False Node
}

func (n *TernaryNode) nodeKind() string { return "ternary" }

// CastNode represents a functional typecast such as int(expr).
type CastNode struct {
	Type string // one of int, float, str, bool
	Expr Node
}

func (n *CastNode) nodeKind() string { return "typecast" }

// TrailingCastNode represents `expr -> type` at the root. The grammar
// permits at most one trailing cast.
type TrailingCastNode struct {
	Expr Node
	Type string
}

func (n *TrailingCastNode) nodeKind() string { return "trailing_typecast" }

// IteratorNode represents `for var.x in collection` at the root.
type IteratorNode struct {
	VarPath    string // loop variable in dot-path form, e.g. "var.x"
	Collection Node
}

func (n *IteratorNode) nodeKind() string { return "iterator" }

// FunctionNode represents FN.name(args) or FN.name.map(args).
type FunctionNode struct {
	Name   string
	Mapped bool
	Args   []Node
}

func (n *FunctionNode) nodeKind() string { return "function" }

// ListNode represents a list literal [a, b, c].
type ListNode struct {
	Elements []Node
}

func (n *ListNode) nodeKind() string { return "list" }

// DictNode represents a dict literal {'k': v, ...}. Keys and Values are
// parallel slices (each pair is a kvpair production).
type DictNode struct {
	Keys   []Node
	Values []Node
}

func (n *DictNode) nodeKind() string { return "dict" }

// Format pretty-prints a parse tree fragment for error reporting.
func Format(node Node) string {
	var sb strings.Builder
	format(&sb, node, 0)
	return sb.String()
}

func format(sb *strings.Builder, node Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := node.(type) {
	case *LiteralNode:
		fmt.Fprintf(sb, "%sliteral %s\n", indent, literalText(n))
	case *ContextNode:
		fmt.Fprintf(sb, "%scontext %s%s\n", indent, n.Kind.Keyword(), n.Path)
	case *BinaryNode:
		fmt.Fprintf(sb, "%sbinary_op %s\n", indent, n.Op)
		format(sb, n.Left, depth+1)
		format(sb, n.Right, depth+1)
	case *UnaryNode:
		fmt.Fprintf(sb, "%sunary_op %s\n", indent, n.Op)
		format(sb, n.Operand, depth+1)
	case *TernaryNode:
		fmt.Fprintf(sb, "%sternary\n", indent)
		format(sb, n.True, depth+1)
		format(sb, n.Cond, depth+1)
		format(sb, n.False, depth+1)
	case *CastNode:
		fmt.Fprintf(sb, "%stypecast %s\n", indent, n.Type)
		format(sb, n.Expr, depth+1)
	case *TrailingCastNode:
		fmt.Fprintf(sb, "%strailing_typecast %s\n", indent, n.Type)
		format(sb, n.Expr, depth+1)
	case *IteratorNode:
		fmt.Fprintf(sb, "%siterator %s\n", indent, n.VarPath)
		format(sb, n.Collection, depth+1)
	case *FunctionNode:
		name := n.Name
		if n.Mapped {
			name += ".map"
		}
		fmt.Fprintf(sb, "%sfunction %s\n", indent, name)
		for _, arg := range n.Args {
			format(sb, arg, depth+1)
		}
	case *ListNode:
		fmt.Fprintf(sb, "%slist\n", indent)
		for _, elem := range n.Elements {
			format(sb, elem, depth+1)
		}
	case *DictNode:
		fmt.Fprintf(sb, "%sdict\n", indent)
		for i := range n.Keys {
			fmt.Fprintf(sb, "%s  kvpair\n", indent)
			format(sb, n.Keys[i], depth+2)
			format(sb, n.Values[i], depth+2)
		}
	default:
		fmt.Fprintf(sb, "%s<unknown node %T>\n", indent, node)
	}
}

func literalText(n *LiteralNode) string {
	switch n.TokenType {
	case TokenInt:
		return fmt.Sprintf("%d", n.IntVal)
	case TokenFloat:
		return fmt.Sprintf("%g", n.FloatVal)
	case TokenString:
		return fmt.Sprintf("%q", n.StrVal)
	case TokenTrue:
		return "True"
	case TokenFalse:
		return "False"
	case TokenNone:
		return "None"
	default:
		return "?"
	}
}
