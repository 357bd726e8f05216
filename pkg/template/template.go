// Package template scans workflow documents for `${{ ... }}` template
// expressions and substitutes their evaluated values. A field whose
// entire content is a single expression keeps the evaluated value's
// native type; expressions embedded in surrounding text are stringified
// in place.
package template

import (
	"regexp"
	"sort"
	"strings"

	"github.com/aqueductflow/aqueduct/pkg/eval"
	"github.com/aqueductflow/aqueduct/pkg/expr"
	"github.com/aqueductflow/aqueduct/pkg/secrets"
	"github.com/aqueductflow/aqueduct/pkg/types"
)

// exprRe matches a template expression. The lazy body keeps adjacent
// expressions in one string separate; (?s) lets bodies span lines.
var exprRe = regexp.MustCompile(`(?s)\$\{\{(.+?)\}\}`)

// ExtractExpressions returns the trimmed inner text of every template
// expression in a string, in order of appearance.
func ExtractExpressions(s string) []string {
	var out []string
	for _, m := range exprRe.FindAllStringSubmatch(s, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// Scan walks a document and collects every template expression found in
// its strings: scalar fields, list elements, and map keys and values.
func Scan(doc types.Value) []string {
	var out []string
	scanValue(doc, &out)
	return out
}

func scanValue(v types.Value, out *[]string) {
	switch v.Type() {
	case types.TypeString:
		*out = append(*out, ExtractExpressions(v.AsString())...)
	case types.TypeList:
		for _, item := range v.AsList() {
			scanValue(item, out)
		}
	case types.TypeMap:
		m := v.AsMap()
		for _, k := range m.Keys() {
			*out = append(*out, ExtractExpressions(k)...)
			child, _ := m.Get(k)
			scanValue(child, out)
		}
	}
}

// isWholeField reports whether a string is exactly one template
// expression with optional surrounding whitespace inside the
// delimiters, so its evaluated type can be preserved.
func isWholeField(s string) bool {
	return strings.HasPrefix(s, "${{") && strings.HasSuffix(s, "}}") &&
		len(exprRe.FindAllString(s, -1)) == 1
}

// Substitute returns a copy of the document with every template
// expression replaced by its evaluated value. Whole-field expressions
// keep their native type; inline expressions are stringified.
func Substitute(doc types.Value, ev *eval.Evaluator) (types.Value, error) {
	switch doc.Type() {
	case types.TypeString:
		return substituteString(doc.AsString(), ev)

	case types.TypeList:
		items := doc.AsList()
		out := make([]types.Value, len(items))
		for i, item := range items {
			v, err := Substitute(item, ev)
			if err != nil {
				return types.Null, err
			}
			out[i] = v
		}
		return types.NewList(out), nil

	case types.TypeMap:
		m := doc.AsMap()
		out := types.NewOrderedMap()
		for _, k := range m.Keys() {
			newKey, err := substituteString(k, ev)
			if err != nil {
				return types.Null, err
			}
			child, _ := m.Get(k)
			newChild, err := Substitute(child, ev)
			if err != nil {
				return types.Null, err
			}
			out.Set(newKey.String(), newChild)
		}
		return types.NewMap(out), nil
	}
	return doc, nil
}

func substituteString(s string, ev *eval.Evaluator) (types.Value, error) {
	if !exprRe.MatchString(s) {
		return types.NewString(s), nil
	}

	if isWholeField(s) {
		inner := strings.TrimSpace(exprRe.FindStringSubmatch(s)[1])
		return evaluateText(inner, ev)
	}

	var evalErr error
	result := exprRe.ReplaceAllStringFunc(s, func(match string) string {
		if evalErr != nil {
			return match
		}
		inner := strings.TrimSpace(exprRe.FindStringSubmatch(match)[1])
		v, err := evaluateText(inner, ev)
		if err != nil {
			evalErr = err
			return match
		}
		return v.String()
	})
	if evalErr != nil {
		return types.Null, evalErr
	}
	return types.NewString(result), nil
}

func evaluateText(input string, ev *eval.Evaluator) (types.Value, error) {
	node, err := expr.Parse(input)
	if err != nil {
		return types.Null, err
	}
	v, err := ev.Eval(node)
	if err != nil {
		if evalErr, ok := err.(*types.EvalError); ok && evalErr.Expression == "" {
			evalErr.Expression = input
		}
		return types.Null, err
	}
	return v, nil
}

// SecretRefs is the set of secret and OAuth references used by a
// document's expressions.
type SecretRefs struct {
	Secrets []string // "name.KEY", sorted, deduplicated
	OAuth   []string // "provider:grant", sorted, deduplicated
}

// ExtractSecretPaths scans a document and collects every secret
// reference from its expressions. References are found by walking the
// parse tree, so secret-like text inside string literals is not
// collected. Unparseable expressions are skipped.
func ExtractSecretPaths(doc types.Value) SecretRefs {
	secretSet := make(map[string]bool)
	oauthSet := make(map[string]bool)

	for _, exprText := range Scan(doc) {
		node, err := expr.Parse(exprText)
		if err != nil {
			continue
		}
		collectSecrets(node, secretSet, oauthSet)
	}

	refs := SecretRefs{
		Secrets: make([]string, 0, len(secretSet)),
		OAuth:   make([]string, 0, len(oauthSet)),
	}
	for ref := range secretSet {
		refs.Secrets = append(refs.Secrets, ref)
	}
	for ref := range oauthSet {
		refs.OAuth = append(refs.OAuth, ref)
	}
	sort.Strings(refs.Secrets)
	sort.Strings(refs.OAuth)
	return refs
}

func collectSecrets(node expr.Node, secretSet, oauthSet map[string]bool) {
	switch n := node.(type) {
	case *expr.ContextNode:
		if n.Kind != expr.ContextSecrets {
			return
		}
		segments, ok := n.AttrSegments()
		if !ok || len(segments) != 2 {
			return
		}
		name, key := segments[0], segments[1]
		if secrets.IsOAuthRef(name) {
			if provider, grant, err := secrets.ParseOAuthKey(name, key); err == nil {
				oauthSet[secrets.OAuthRef(provider, grant)] = true
			}
			return
		}
		secretSet[secrets.Ref(name, key)] = true

	case *expr.BinaryNode:
		collectSecrets(n.Left, secretSet, oauthSet)
		collectSecrets(n.Right, secretSet, oauthSet)
	case *expr.UnaryNode:
		collectSecrets(n.Operand, secretSet, oauthSet)
	case *expr.TernaryNode:
		collectSecrets(n.True, secretSet, oauthSet)
		collectSecrets(n.Cond, secretSet, oauthSet)
		collectSecrets(n.False, secretSet, oauthSet)
	case *expr.CastNode:
		collectSecrets(n.Expr, secretSet, oauthSet)
	case *expr.TrailingCastNode:
		collectSecrets(n.Expr, secretSet, oauthSet)
	case *expr.IteratorNode:
		collectSecrets(n.Collection, secretSet, oauthSet)
	case *expr.FunctionNode:
		for _, arg := range n.Args {
			collectSecrets(arg, secretSet, oauthSet)
		}
	case *expr.ListNode:
		for _, elem := range n.Elements {
			collectSecrets(elem, secretSet, oauthSet)
		}
	case *expr.DictNode:
		for i := range n.Keys {
			collectSecrets(n.Keys[i], secretSet, oauthSet)
			collectSecrets(n.Values[i], secretSet, oauthSet)
		}
	}
}
