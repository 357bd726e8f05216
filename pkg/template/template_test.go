package template

import (
	"encoding/json"
	"testing"

	"github.com/aqueductflow/aqueduct/pkg/eval"
	"github.com/aqueductflow/aqueduct/pkg/types"
)

func docFromJSON(t *testing.T, doc string) types.Value {
	t.Helper()
	var raw interface{}
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		t.Fatalf("bad test document: %v", err)
	}
	return types.FromGo(raw)
}

func testEvaluator(t *testing.T) *eval.Evaluator {
	t.Helper()
	operand := map[string]types.Value{
		"ACTIONS": docFromJSON(t, `{"webhook": {"result": 42}, "scan": {"result": [1, 2]}}`),
		"INPUTS":  docFromJSON(t, `{"name": "ann", "count": 2}`),
		"SECRETS": docFromJSON(t, `{"api": {"KEY": "s3cret"}}`),
	}
	return eval.New(operand)
}

func TestExtractExpressions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"none", "plain text", nil},
		{"single", "${{ INPUTS.name }}", []string{"INPUTS.name"}},
		{"adjacent stay separate", "${{ a.b }}-${{ FN.now() }}", []string{"a.b", "FN.now()"}},
		{"multiline body", "${{ 1 +\n2 }}", []string{"1 +\n2"}},
		{"unclosed ignored", "${{ open", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractExpressions(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expression %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScanDocument(t *testing.T) {
	doc := docFromJSON(t, `{
		"url": "${{ INPUTS.base }}/path",
		"items": ["${{ ACTIONS.scan.result }}", "plain"],
		"nested": {"${{ INPUTS.key }}": "${{ INPUTS.value }}"}
	}`)

	got := Scan(doc)
	if len(got) != 4 {
		t.Fatalf("Scan found %d expressions, want 4: %v", len(got), got)
	}
}

// A field that is exactly one expression keeps the evaluated type; an
// embedded expression is stringified.
func TestSubstituteWholeFieldVsInline(t *testing.T) {
	ev := testEvaluator(t)

	doc := docFromJSON(t, `{
		"whole": "${{ ACTIONS.webhook.result }}",
		"inline": "val: ${{ ACTIONS.webhook.result }}",
		"whole_list": "${{ ACTIONS.scan.result }}",
		"padded": "  ${{ ACTIONS.webhook.result }}  "
	}`)

	got, err := Substitute(doc, ev)
	if err != nil {
		t.Fatalf("Substitute error: %v", err)
	}
	m := got.AsMap()

	whole, _ := m.Get("whole")
	if whole.Type() != types.TypeInt || whole.AsInt() != 42 {
		t.Errorf("whole field = %s (%s), want int 42", whole.String(), whole.Type())
	}

	inline, _ := m.Get("inline")
	if inline.Type() != types.TypeString || inline.AsString() != "val: 42" {
		t.Errorf("inline field = %s, want \"val: 42\"", inline.String())
	}

	wholeList, _ := m.Get("whole_list")
	if wholeList.Type() != types.TypeList {
		t.Errorf("whole list field = %s (%s), want list", wholeList.String(), wholeList.Type())
	}

	// Surrounding text, even whitespace, forces stringification.
	padded, _ := m.Get("padded")
	if padded.Type() != types.TypeString || padded.AsString() != "  42  " {
		t.Errorf("padded field = %q (%s), want string \"  42  \"", padded.String(), padded.Type())
	}
}

func TestSubstituteMultipleInline(t *testing.T) {
	ev := testEvaluator(t)

	doc := docFromJSON(t, `{"msg": "${{ INPUTS.name }} has ${{ INPUTS.count }}"}`)
	got, err := Substitute(doc, ev)
	if err != nil {
		t.Fatalf("Substitute error: %v", err)
	}
	msg, _ := got.AsMap().Get("msg")
	if msg.AsString() != "ann has 2" {
		t.Errorf("msg = %q, want \"ann has 2\"", msg.AsString())
	}
}

func TestSubstituteMapKeys(t *testing.T) {
	ev := testEvaluator(t)

	doc := docFromJSON(t, `{"${{ INPUTS.name }}": 1}`)
	got, err := Substitute(doc, ev)
	if err != nil {
		t.Fatalf("Substitute error: %v", err)
	}
	if _, ok := got.AsMap().Get("ann"); !ok {
		t.Errorf("substituted keys = %v, want [ann]", got.AsMap().Keys())
	}
}

func TestSubstitutePreservesPlainValues(t *testing.T) {
	ev := testEvaluator(t)

	doc := docFromJSON(t, `{"n": 7, "b": true, "s": "plain", "nil": null}`)
	got, err := Substitute(doc, ev)
	if err != nil {
		t.Fatalf("Substitute error: %v", err)
	}
	if !got.Equal(doc) {
		t.Errorf("document changed: %s", got.String())
	}
}

func TestSubstitutePropagatesErrors(t *testing.T) {
	ev := testEvaluator(t)

	doc := docFromJSON(t, `{"bad": "${{ ACTIONS.missing.result }}"}`)
	if _, err := Substitute(doc, ev); err == nil {
		t.Fatal("expected error for unresolvable expression")
	}

	doc = docFromJSON(t, `{"bad": "x ${{ not valid ( }}"}`)
	if _, err := Substitute(doc, ev); err == nil {
		t.Fatal("expected error for unparseable inline expression")
	}
}

func TestExtractSecretPaths(t *testing.T) {
	doc := docFromJSON(t, `{
		"auth": "${{ SECRETS.api.KEY }}",
		"again": "${{ SECRETS.api.KEY }}",
		"other": "${{ SECRETS.db.PASSWORD }}",
		"oauth": "${{ SECRETS.github_oauth.GITHUB_SERVICE_TOKEN }}"
	}`)

	refs := ExtractSecretPaths(doc)

	wantSecrets := []string{"api.KEY", "db.PASSWORD"}
	if len(refs.Secrets) != len(wantSecrets) {
		t.Fatalf("Secrets = %v, want %v", refs.Secrets, wantSecrets)
	}
	for i := range wantSecrets {
		if refs.Secrets[i] != wantSecrets[i] {
			t.Errorf("Secrets[%d] = %q, want %q", i, refs.Secrets[i], wantSecrets[i])
		}
	}

	if len(refs.OAuth) != 1 || refs.OAuth[0] != "github:service" {
		t.Errorf("OAuth = %v, want [github:service]", refs.OAuth)
	}
}

// Secret-like text inside a string literal is not a secret reference.
func TestExtractSecretPathsIgnoresStringLiterals(t *testing.T) {
	doc := docFromJSON(t, `{
		"doc": "${{ 'the literal text SECRETS.fake.KEY' }}",
		"real": "${{ SECRETS.api.KEY }}"
	}`)

	refs := ExtractSecretPaths(doc)
	if len(refs.Secrets) != 1 || refs.Secrets[0] != "api.KEY" {
		t.Errorf("Secrets = %v, want [api.KEY]", refs.Secrets)
	}
}

func TestExtractSecretPathsInsideCompoundExpressions(t *testing.T) {
	doc := docFromJSON(t, `{
		"header": "${{ 'Bearer ' + SECRETS.api.KEY }}",
		"cond": "${{ SECRETS.a.K1 if INPUTS.x else SECRETS.b.K2 }}"
	}`)

	refs := ExtractSecretPaths(doc)
	want := []string{"a.K1", "api.KEY", "b.K2"}
	if len(refs.Secrets) != len(want) {
		t.Fatalf("Secrets = %v, want %v", refs.Secrets, want)
	}
	for i := range want {
		if refs.Secrets[i] != want[i] {
			t.Errorf("Secrets[%d] = %q, want %q", i, refs.Secrets[i], want[i])
		}
	}
}
