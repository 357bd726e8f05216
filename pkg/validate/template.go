package validate

import (
	"context"

	"github.com/aqueductflow/aqueduct/pkg/expr"
	"github.com/aqueductflow/aqueduct/pkg/types"
)

// Expression type labels specific to template-action validation.
const (
	TypeTemplateInput = "template_input"
	TypeTemplateStep  = "template_step"
)

// TemplateSchema describes a template action definition: its declared
// inputs (expects) and its step references.
type TemplateSchema struct {
	Expects     map[string]bool
	StepRefs    map[string]bool
	Environment string // secret lookup environment
}

// TemplateValidator checks expressions inside a template action
// definition. Template expressions may reference the template's own
// inputs and steps, FN builtins, and SECRETS; the remaining
// workflow-level contexts are rejected. Secret and function checks use
// the same rules as the workflow validator.
type TemplateValidator struct {
	schema  TemplateSchema
	inner   *Validator
	results []Result
}

// NewTemplate creates a template-action validator. The secret store and
// OAuth registry may be nil, in which case secret existence is not
// checked.
func NewTemplate(schema TemplateSchema, store SecretStore, oauth OAuthRegistry) *TemplateValidator {
	return &TemplateValidator{
		schema: schema,
		inner:  New(WorkflowSchema{Environment: schema.Environment}, store, oauth),
	}
}

// Validate checks a single template expression and records findings.
func (v *TemplateValidator) Validate(expression string) {
	node, err := expr.Parse(expression)
	if err != nil {
		msg := err.Error()
		if parseErr, ok := err.(*types.ParseError); ok {
			msg = parseErr.Message
		}
		v.results = append(v.results, Result{
			Status:         StatusError,
			Message:        msg,
			ExpressionType: TypeSyntax,
			Expression:     expression,
		})
		return
	}

	before := len(v.results) + len(v.inner.results) + len(v.inner.checks)
	v.walk(node, expression)
	if len(v.results)+len(v.inner.results)+len(v.inner.checks) == before {
		v.results = append(v.results, Result{
			Status:         StatusSuccess,
			ExpressionType: TypeGeneral,
			Expression:     expression,
		})
	}
}

// Finish runs the queued secret checks concurrently and returns every
// finding.
func (v *TemplateValidator) Finish(ctx context.Context) []Result {
	return append(v.results, v.inner.Finish(ctx)...)
}

func (v *TemplateValidator) errorf(exprType, ref, expression, msg string) {
	v.results = append(v.results, Result{
		Status:         StatusError,
		Message:        msg,
		ExpressionType: exprType,
		Ref:            ref,
		Expression:     expression,
	})
}

func (v *TemplateValidator) walk(node expr.Node, expression string) {
	switch n := node.(type) {
	case *expr.ContextNode:
		v.checkContext(n, expression)
	case *expr.BinaryNode:
		v.walk(n.Left, expression)
		v.walk(n.Right, expression)
	case *expr.UnaryNode:
		v.walk(n.Operand, expression)
	case *expr.TernaryNode:
		v.walk(n.True, expression)
		v.walk(n.Cond, expression)
		v.walk(n.False, expression)
	case *expr.CastNode:
		v.walk(n.Expr, expression)
	case *expr.TrailingCastNode:
		v.walk(n.Expr, expression)
	case *expr.IteratorNode:
		v.walk(n.Collection, expression)
	case *expr.FunctionNode:
		v.inner.checkFunction(n, expression)
		for _, arg := range n.Args {
			v.walk(arg, expression)
		}
	case *expr.ListNode:
		for _, elem := range n.Elements {
			v.walk(elem, expression)
		}
	case *expr.DictNode:
		for i := range n.Keys {
			v.walk(n.Keys[i], expression)
			v.walk(n.Values[i], expression)
		}
	}
}

func (v *TemplateValidator) checkContext(n *expr.ContextNode, expression string) {
	switch n.Kind {
	case expr.ContextTemplateInputs:
		segments, ok := n.AttrSegments()
		if !ok || len(segments) == 0 {
			return
		}
		if v.schema.Expects != nil && !v.schema.Expects[segments[0]] {
			v.errorf(TypeTemplateInput, segments[0], expression,
				"template input \""+segments[0]+"\" is not declared in expects")
		}

	case expr.ContextTemplateSteps:
		segments, ok := n.AttrSegments()
		if !ok || len(segments) == 0 {
			return
		}
		if v.schema.StepRefs != nil && !v.schema.StepRefs[segments[0]] {
			v.errorf(TypeTemplateStep, segments[0], expression,
				"template step \""+segments[0]+"\" does not exist")
		}

	case expr.ContextSecrets:
		v.inner.checkSecret(n, expression)

	case expr.ContextActions:
		v.errorf(TypeGeneral, n.Kind.Keyword(), expression,
			"ACTIONS references are not allowed in templates; use steps instead")
	case expr.ContextInputs:
		v.errorf(TypeGeneral, n.Kind.Keyword(), expression,
			"INPUTS references are not allowed in templates; use inputs (template expects) instead")
	case expr.ContextEnv:
		v.errorf(TypeGeneral, n.Kind.Keyword(), expression,
			"ENV references are not allowed in templates")
	case expr.ContextTrigger:
		v.errorf(TypeGeneral, n.Kind.Keyword(), expression,
			"TRIGGER references are not allowed in templates")
	case expr.ContextLocalVars:
		v.errorf(TypeGeneral, n.Kind.Keyword(), expression,
			"var references are not allowed in templates")
	}
}
