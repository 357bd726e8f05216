package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aqueductflow/aqueduct/pkg/secrets"
	"github.com/aqueductflow/aqueduct/pkg/types"
)

func testSchema() WorkflowSchema {
	return WorkflowSchema{
		ActionRefs:  map[string]bool{"webhook": true, "scan": true},
		Inputs:      map[string]bool{"arg1": true, "name": true},
		Environment: "prod",
	}
}

func testStore() *secrets.Store {
	s := secrets.NewStore()
	s.Put("prod", "api", "KEY", "v")
	s.GrantOAuth("github", secrets.GrantService)
	return s
}

func findErrors(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Status == StatusError {
			out = append(out, r)
		}
	}
	return out
}

func TestValidateSuccess(t *testing.T) {
	store := testStore()
	v := New(testSchema(), store, store)

	for _, input := range []string{
		"ACTIONS.webhook.result",
		"ACTIONS.scan.result[0]",
		"ACTIONS.scan.result[*]",
		"ACTIONS.webhook.result.foo.bar",
		"ACTIONS.scan.result[0].items[*].id",
		"ACTIONS.webhook.result['dotted.key']",
		"ACTIONS.webhook.result_typename",
		"ACTIONS.webhook.error",
		"INPUTS.arg1",
		"SECRETS.api.KEY",
		"SECRETS.github_oauth.GITHUB_SERVICE_TOKEN",
		"ENV.workflow.id",
		"TRIGGER.payload",
		"FN.add(1, 2)",
		"int('42')",
		"FN.add(INPUTS.arg1, ACTIONS.webhook.result)",
	} {
		v.Validate(input)
	}

	results := v.Finish(context.Background())
	if errs := findErrors(results); len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
}

func TestValidateActionErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantRef string
		wantMsg string
	}{
		{"unknown action", "ACTIONS.nonexistent.result", "nonexistent", "unknown action"},
		{"unknown action deep path", "ACTIONS.nonexistent.result.foo", "nonexistent", "unknown action"},
		{"bad accessor", "ACTIONS.webhook.output", "webhook", "invalid accessor"},
		{"bad accessor deep path", "ACTIONS.webhook.output.foo.bar", "webhook", "invalid accessor"},
		{"bare ref", "ACTIONS.webhook", "", "malformed action reference"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(testSchema(), nil, nil)
			v.Validate(tt.input)
			errs := findErrors(v.Finish(context.Background()))
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %+v", len(errs), errs)
			}
			if errs[0].ExpressionType != TypeAction {
				t.Errorf("expression type = %q, want action", errs[0].ExpressionType)
			}
			if errs[0].Ref != tt.wantRef {
				t.Errorf("ref = %q, want %q", errs[0].Ref, tt.wantRef)
			}
			if !strings.Contains(errs[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", errs[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateSecretNotFound(t *testing.T) {
	store := testStore()
	v := New(testSchema(), store, store)
	v.Validate("SECRETS.missing_secret.KEY")

	errs := findErrors(v.Finish(context.Background()))
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %+v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Message, "missing_secret") {
		t.Errorf("message %q does not name the missing secret", errs[0].Message)
	}
	if errs[0].Ref != "missing_secret" {
		t.Errorf("ref = %q, want missing_secret", errs[0].Ref)
	}
}

func TestValidateSecretMissingKey(t *testing.T) {
	store := testStore()
	v := New(testSchema(), store, store)
	v.Validate("SECRETS.api.WRONG_KEY")

	errs := findErrors(v.Finish(context.Background()))
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "WRONG_KEY") {
		t.Fatalf("got %+v, want one error naming WRONG_KEY", errs)
	}
}

func TestValidateSecretShape(t *testing.T) {
	v := New(testSchema(), nil, nil)
	v.Validate("SECRETS.api")

	errs := findErrors(v.Finish(context.Background()))
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "SECRETS.my_secret.KEY") {
		t.Fatalf("got %+v, want corrective format message", errs)
	}
}

func TestValidateOAuth(t *testing.T) {
	store := testStore()

	t.Run("grant exists", func(t *testing.T) {
		v := New(testSchema(), store, store)
		v.Validate("SECRETS.github_oauth.GITHUB_SERVICE_TOKEN")
		if errs := findErrors(v.Finish(context.Background())); len(errs) != 0 {
			t.Errorf("unexpected errors: %+v", errs)
		}
	})

	t.Run("grant missing", func(t *testing.T) {
		v := New(testSchema(), store, store)
		v.Validate("SECRETS.github_oauth.GITHUB_USER_TOKEN")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || !strings.Contains(errs[0].Message, "user") {
			t.Errorf("got %+v, want missing user grant error", errs)
		}
	})

	t.Run("bad token key", func(t *testing.T) {
		v := New(testSchema(), store, store)
		v.Validate("SECRETS.github_oauth.API_KEY")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || !strings.Contains(errs[0].Message, "GITHUB_SERVICE_TOKEN") {
			t.Errorf("got %+v, want corrective key message", errs)
		}
	})
}

// failingStore simulates secret backend outage.
type failingStore struct{}

func (failingStore) LookupSecret(ctx context.Context, name, environment string) ([]string, error) {
	return nil, errors.New("backend unavailable")
}

func TestValidateSecretBackendFailureIsIsolated(t *testing.T) {
	v := New(testSchema(), failingStore{}, nil)
	v.Validate("SECRETS.api.KEY")
	v.Validate("ACTIONS.webhook.result")

	results := v.Finish(context.Background())
	errs := findErrors(results)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %+v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Message, "could not validate") {
		t.Errorf("message = %q, want a could-not-validate result", errs[0].Message)
	}

	// The healthy expression still validated.
	found := false
	for _, r := range results {
		if r.Status == StatusSuccess && r.Expression == "ACTIONS.webhook.result" {
			found = true
		}
	}
	if !found {
		t.Error("healthy expression missing its success result")
	}
}

func TestValidateInputErrors(t *testing.T) {
	v := New(testSchema(), nil, nil)
	v.Validate("INPUTS.undeclared")

	errs := findErrors(v.Finish(context.Background()))
	if len(errs) != 1 || errs[0].ExpressionType != TypeInput {
		t.Fatalf("got %+v, want one input error", errs)
	}
}

func TestValidateInputPathResolution(t *testing.T) {
	nested := types.NewOrderedMap()
	nested.Set("name", types.NewString("x"))
	inputs := types.NewOrderedMap()
	inputs.Set("user", types.NewMap(nested))
	schema := WorkflowSchema{InputsData: types.NewMap(inputs), Environment: "prod"}

	v := New(schema, nil, nil)
	v.Validate("INPUTS.user.name")
	if errs := findErrors(v.Finish(context.Background())); len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}

	v = New(schema, nil, nil)
	v.Validate("INPUTS.user.missing")
	errs := findErrors(v.Finish(context.Background()))
	if len(errs) != 1 || errs[0].ExpressionType != TypeInput {
		t.Fatalf("got %+v, want one input error", errs)
	}
}

func TestValidateFunctionErrors(t *testing.T) {
	t.Run("unknown function", func(t *testing.T) {
		v := New(testSchema(), nil, nil)
		v.Validate("FN.no_such(1)")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || errs[0].Ref != "no_such" {
			t.Fatalf("got %+v", errs)
		}
	})

	t.Run("too few arguments", func(t *testing.T) {
		v := New(testSchema(), nil, nil)
		v.Validate("FN.add(1)")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || errs[0].ExpressionType != TypeFunction {
			t.Fatalf("got %+v", errs)
		}
		if !strings.Contains(errs[0].Message, "exactly 2") {
			t.Errorf("message = %q, want arity bounds", errs[0].Message)
		}
	})

	t.Run("too many arguments for zero-arg function", func(t *testing.T) {
		v := New(testSchema(), nil, nil)
		v.Validate("FN.now(1)")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || !strings.Contains(errs[0].Message, "exactly 0") {
			t.Fatalf("got %+v, want message stating the accepted count", errs)
		}
	})
}

func TestValidateLiteralCast(t *testing.T) {
	v := New(testSchema(), nil, nil)
	v.Validate("int('not a number')")
	errs := findErrors(v.Finish(context.Background()))
	if len(errs) != 1 || errs[0].ExpressionType != TypeTypecast {
		t.Fatalf("got %+v, want one typecast error", errs)
	}

	// Non-literal operands cannot be refuted statically.
	v = New(testSchema(), nil, nil)
	v.Validate("int(INPUTS.arg1)")
	if errs := findErrors(v.Finish(context.Background())); len(errs) != 0 {
		t.Errorf("non-literal cast flagged: %+v", errs)
	}
}

func TestValidateSyntaxError(t *testing.T) {
	v := New(testSchema(), nil, nil)
	v.Validate("1 +")
	errs := findErrors(v.Finish(context.Background()))
	if len(errs) != 1 || errs[0].ExpressionType != TypeSyntax {
		t.Fatalf("got %+v, want one syntax error", errs)
	}
}

func TestTemplateValidator(t *testing.T) {
	schema := TemplateSchema{
		Expects:     map[string]bool{"url": true},
		StepRefs:    map[string]bool{"fetch": true},
		Environment: "prod",
	}
	store := testStore()

	t.Run("valid references", func(t *testing.T) {
		v := NewTemplate(schema, store, store)
		v.Validate("inputs.url")
		v.Validate("steps.fetch.result")
		v.Validate("FN.add(1, 2)")
		v.Validate("SECRETS.api.KEY")
		if errs := findErrors(v.Finish(context.Background())); len(errs) != 0 {
			t.Errorf("unexpected errors: %+v", errs)
		}
	})

	t.Run("undeclared input", func(t *testing.T) {
		v := NewTemplate(schema, store, store)
		v.Validate("inputs.undeclared")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || errs[0].ExpressionType != TypeTemplateInput {
			t.Fatalf("got %+v", errs)
		}
	})

	t.Run("unknown step", func(t *testing.T) {
		v := NewTemplate(schema, store, store)
		v.Validate("steps.missing.result")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || errs[0].ExpressionType != TypeTemplateStep {
			t.Fatalf("got %+v", errs)
		}
	})

	t.Run("secrets checked against the store", func(t *testing.T) {
		v := NewTemplate(schema, store, store)
		v.Validate("SECRETS.missing_secret.KEY")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || !strings.Contains(errs[0].Message, "missing_secret") {
			t.Fatalf("got %+v, want one error naming missing_secret", errs)
		}
	})

	t.Run("unknown function", func(t *testing.T) {
		v := NewTemplate(schema, store, store)
		v.Validate("FN.no_such(1)")
		errs := findErrors(v.Finish(context.Background()))
		if len(errs) != 1 || errs[0].Ref != "no_such" {
			t.Fatalf("got %+v", errs)
		}
	})

	t.Run("workflow contexts rejected", func(t *testing.T) {
		for _, input := range []string{
			"ACTIONS.webhook.result",
			"INPUTS.arg1",
			"ENV.workflow.id",
			"TRIGGER.payload",
			"var.item",
		} {
			v := NewTemplate(schema, store, store)
			v.Validate(input)
			errs := findErrors(v.Finish(context.Background()))
			if len(errs) != 1 {
				t.Errorf("%s: got %d errors, want 1", input, len(errs))
			}
		}
	})
}
