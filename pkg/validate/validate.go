// Package validate statically checks template expressions against a
// workflow definition: action references, input names, secret
// existence, OAuth grants, function names and arities, and literal
// typecasts. Validation collects findings instead of failing fast, and
// checks that need I/O (secret and grant lookups) run concurrently when
// the run is finished.
package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/aqueductflow/aqueduct/pkg/expr"
	"github.com/aqueductflow/aqueduct/pkg/fn"
	"github.com/aqueductflow/aqueduct/pkg/jsonpath"
	"github.com/aqueductflow/aqueduct/pkg/secrets"
	"github.com/aqueductflow/aqueduct/pkg/types"
)

// Status classifies a validation result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is a single validation finding.
type Result struct {
	Status         Status `json:"status"`
	Message        string `json:"message,omitempty"`
	ExpressionType string `json:"expression_type"`
	Ref            string `json:"ref,omitempty"`
	Expression     string `json:"expression"`
}

// Expression type labels used in results.
const (
	TypeSyntax   = "syntax"
	TypeAction   = "action"
	TypeInput    = "input"
	TypeSecret   = "secret"
	TypeFunction = "function"
	TypeTypecast = "typecast"
	TypeGeneral  = "general"
)

// SecretStore looks up the key names of a stored secret. A nil key
// slice with a nil error means the secret does not exist.
type SecretStore interface {
	LookupSecret(ctx context.Context, name, environment string) ([]string, error)
}

// OAuthRegistry reports whether a provider holds an OAuth grant of the
// given type.
type OAuthRegistry interface {
	HasGrant(ctx context.Context, provider, grant string) (bool, error)
}

// WorkflowSchema describes the statically-known shape of a workflow for
// validation purposes.
type WorkflowSchema struct {
	ActionRefs  map[string]bool // declared action references
	Inputs      map[string]bool // declared workflow input names
	InputsData  types.Value     // inputs document, when available (checked by path resolution)
	Environment string          // secret lookup environment
}

// Validator accumulates validation findings across the expressions of a
// workflow. It is not safe for concurrent use; Finish runs the queued
// I/O checks concurrently and must be called exactly once.
type Validator struct {
	schema  WorkflowSchema
	secrets SecretStore
	oauth   OAuthRegistry
	checks  []func(ctx context.Context) Result
	results []Result
}

// New creates a validator. The secret store and OAuth registry may be
// nil, in which case secret and grant existence is not checked.
func New(schema WorkflowSchema, store SecretStore, oauth OAuthRegistry) *Validator {
	return &Validator{schema: schema, secrets: store, oauth: oauth}
}

// actionAccessors are the fields that may follow an action reference.
var actionAccessors = map[string]bool{
	"result":          true,
	"result_typename": true,
	"error":           true,
}

// actionPathRe captures `.ref.accessor` and permits any trailing path
// segments. Only the ref and accessor names are checked statically; the
// structure below an accessor is runtime data.
var actionPathRe = regexp.MustCompile(`^\.([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)(?:[.\[].*)?$`)

// Validate checks a single expression and records findings. It never
// returns an error: malformed expressions become error results.
func (v *Validator) Validate(expression string) {
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

	before := len(v.results) + len(v.checks)
	v.walk(node, expression)
	if len(v.results)+len(v.checks) == before {
		v.results = append(v.results, Result{
			Status:         StatusSuccess,
			ExpressionType: TypeGeneral,
			Expression:     expression,
		})
	}
}

// Finish runs all queued I/O checks concurrently, gathers their
// results, and returns every finding. A panicking or failing check
// yields a "could not validate" result rather than aborting the run.
func (v *Validator) Finish(ctx context.Context) []Result {
	gathered := make([]Result, len(v.checks))
	var wg sync.WaitGroup
	for i, check := range v.checks {
		wg.Add(1)
		go func(i int, check func(ctx context.Context) Result) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					gathered[i] = Result{
						Status:         StatusError,
						Message:        fmt.Sprintf("could not validate: %v", r),
						ExpressionType: TypeGeneral,
					}
				}
			}()
			gathered[i] = check(ctx)
		}(i, check)
	}
	wg.Wait()

	v.checks = nil
	v.results = append(v.results, gathered...)
	return v.results
}

func (v *Validator) errorf(exprType, ref, expression, format string, args ...interface{}) {
	v.results = append(v.results, Result{
		Status:         StatusError,
		Message:        fmt.Sprintf(format, args...),
		ExpressionType: exprType,
		Ref:            ref,
		Expression:     expression,
	})
}

func (v *Validator) walk(node expr.Node, expression string) {
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
		v.checkLiteralCast(n.Type, n.Expr, expression)
		v.walk(n.Expr, expression)

	case *expr.TrailingCastNode:
		v.checkLiteralCast(n.Type, n.Expr, expression)
		v.walk(n.Expr, expression)

	case *expr.IteratorNode:
		if !strings.HasPrefix(n.VarPath, "var.") {
			v.errorf(TypeGeneral, n.VarPath, expression,
				"iterator variable %q must be in the var context", n.VarPath)
		}
		v.walk(n.Collection, expression)

	case *expr.FunctionNode:
		v.checkFunction(n, expression)
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

func (v *Validator) checkContext(n *expr.ContextNode, expression string) {
	switch n.Kind {
	case expr.ContextActions:
		v.checkAction(n, expression)
	case expr.ContextSecrets:
		v.checkSecret(n, expression)
	case expr.ContextInputs:
		v.checkInput(n, expression)
	case expr.ContextTemplateInputs, expr.ContextTemplateSteps:
		v.errorf(TypeGeneral, n.Kind.Keyword(), expression,
			"%s references are only valid inside action templates", n.Kind.Keyword())
	}
	// ENV, TRIGGER, and var resolve dynamically; nothing to check here.
}

func (v *Validator) checkAction(n *expr.ContextNode, expression string) {
	m := actionPathRe.FindStringSubmatch(n.Path)
	if m == nil {
		v.errorf(TypeAction, "", expression,
			"malformed action reference ACTIONS%s: expected ACTIONS.my_action.result", n.Path)
		return
	}
	ref, accessor := m[1], m[2]

	if v.schema.ActionRefs != nil && !v.schema.ActionRefs[ref] {
		v.errorf(TypeAction, ref, expression, "unknown action reference %q", ref)
		return
	}
	if !actionAccessors[accessor] {
		v.errorf(TypeAction, ref, expression,
			"invalid accessor %q on action %q: expected result, result_typename, or error", accessor, ref)
	}
}

func (v *Validator) checkSecret(n *expr.ContextNode, expression string) {
	segments, ok := n.AttrSegments()
	if !ok || len(segments) != 2 {
		v.errorf(TypeSecret, "", expression,
			"invalid secret reference SECRETS%s: expected the format SECRETS.my_secret.KEY", n.Path)
		return
	}
	name, key := segments[0], segments[1]

	if secrets.IsOAuthRef(name) {
		provider, grant, err := secrets.ParseOAuthKey(name, key)
		if err != nil {
			v.errorf(TypeSecret, name, expression, "%s", err.Error())
			return
		}
		if v.oauth == nil {
			return
		}
		v.checks = append(v.checks, func(ctx context.Context) Result {
			ok, err := v.oauth.HasGrant(ctx, provider, grant)
			if err != nil {
				return Result{
					Status:         StatusError,
					Message:        fmt.Sprintf("could not validate OAuth grant %s: %v", secrets.OAuthRef(provider, grant), err),
					ExpressionType: TypeSecret,
					Ref:            name,
					Expression:     expression,
				}
			}
			if !ok {
				return Result{
					Status:         StatusError,
					Message:        fmt.Sprintf("no %s OAuth grant for provider %q", grant, provider),
					ExpressionType: TypeSecret,
					Ref:            name,
					Expression:     expression,
				}
			}
			return Result{Status: StatusSuccess, ExpressionType: TypeSecret, Ref: name, Expression: expression}
		})
		return
	}

	if v.secrets == nil {
		return
	}
	environment := v.schema.Environment
	v.checks = append(v.checks, func(ctx context.Context) Result {
		keys, err := v.secrets.LookupSecret(ctx, name, environment)
		if err != nil {
			return Result{
				Status:         StatusError,
				Message:        fmt.Sprintf("could not validate secret %q: %v", name, err),
				ExpressionType: TypeSecret,
				Ref:            name,
				Expression:     expression,
			}
		}
		if keys == nil {
			return Result{
				Status:         StatusError,
				Message:        fmt.Sprintf("secret %q not found in environment %q", name, environment),
				ExpressionType: TypeSecret,
				Ref:            name,
				Expression:     expression,
			}
		}
		for _, k := range keys {
			if k == key {
				return Result{Status: StatusSuccess, ExpressionType: TypeSecret, Ref: name, Expression: expression}
			}
		}
		return Result{
			Status:         StatusError,
			Message:        fmt.Sprintf("secret %q has no key %q", name, key),
			ExpressionType: TypeSecret,
			Ref:            name,
			Expression:     expression,
		}
	})
}

func (v *Validator) checkInput(n *expr.ContextNode, expression string) {
	// With the inputs document in hand, the whole path is resolvable
	// statically.
	if v.schema.InputsData.Type() == types.TypeMap {
		operand := types.NewMapFromGoMap(map[string]types.Value{
			"INPUTS": v.schema.InputsData,
		})
		if _, err := jsonpath.Resolve("INPUTS"+n.Path, operand, true); err != nil {
			ref := ""
			if segments, ok := n.AttrSegments(); ok && len(segments) > 0 {
				ref = segments[0]
			}
			v.errorf(TypeInput, ref, expression,
				"input path INPUTS%s does not resolve against the workflow inputs", n.Path)
		}
		return
	}

	if v.schema.Inputs == nil {
		return
	}
	segments, ok := n.AttrSegments()
	if !ok || len(segments) == 0 {
		// Bracket paths resolve dynamically against the inputs document.
		return
	}
	if !v.schema.Inputs[segments[0]] {
		v.errorf(TypeInput, segments[0], expression, "unknown workflow input %q", segments[0])
	}
}

func (v *Validator) checkFunction(n *expr.FunctionNode, expression string) {
	arity, ok := fn.Lookup(n.Name)
	if !ok {
		v.errorf(TypeFunction, n.Name, expression, "unknown function %q", n.Name)
		return
	}
	if !arity.Accepts(len(n.Args)) {
		v.errorf(TypeFunction, n.Name, expression,
			"%s called with %d argument(s), accepts %s", n.Name, len(n.Args), arityText(arity))
	}
}

func arityText(a fn.Arity) string {
	switch {
	case a.Max < 0:
		return fmt.Sprintf("at least %d", a.Min)
	case a.Min == a.Max:
		return fmt.Sprintf("exactly %d", a.Min)
	default:
		return fmt.Sprintf("%d to %d", a.Min, a.Max)
	}
}

// checkLiteralCast statically refutes casts whose operand is a literal.
// Non-literal operands can only be checked at evaluation time.
func (v *Validator) checkLiteralCast(target string, inner expr.Node, expression string) {
	lit, ok := inner.(*expr.LiteralNode)
	if !ok {
		return
	}
	var value types.Value
	switch lit.TokenType {
	case expr.TokenInt:
		value = types.NewInt(lit.IntVal)
	case expr.TokenFloat:
		value = types.NewFloat(lit.FloatVal)
	case expr.TokenString:
		value = types.NewString(lit.StrVal)
	case expr.TokenTrue:
		value = types.NewBool(true)
	case expr.TokenFalse:
		value = types.NewBool(false)
	case expr.TokenNone:
		value = types.Null
	default:
		return
	}
	if _, err := fn.Cast(value, target); err != nil {
		v.errorf(TypeTypecast, target, expression,
			"literal %s cannot be cast to %s", value.String(), target)
	}
}
