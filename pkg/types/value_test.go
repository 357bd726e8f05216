package types

import (
	"encoding/json"
	"testing"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", Null, false},
		{"false", NewBool(false), false},
		{"true", NewBool(true), true},
		{"zero int", NewInt(0), false},
		{"nonzero int", NewInt(-1), true},
		{"zero float", NewFloat(0), false},
		{"empty string", NewString(""), false},
		{"string", NewString("x"), true},
		{"empty list", NewList(nil), false},
		{"list", NewList([]Value{Null}), true},
		{"empty map", NewMap(NewOrderedMap()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Truthy(); got != tt.want {
				t.Errorf("Truthy(%s) = %v, want %v", tt.v.String(), got, tt.want)
			}
		})
	}
}

func TestEqualNumericCrossType(t *testing.T) {
	if !NewInt(1).Equal(NewFloat(1.0)) {
		t.Error("1 should equal 1.0")
	}
	if NewInt(1).Equal(NewString("1")) {
		t.Error("1 should not equal \"1\"")
	}
}

func TestStringForm(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null, "null"},
		{"bool", NewBool(true), "true"},
		{"int", NewInt(42), "42"},
		{"integral float keeps decimal", NewFloat(2.0), "2.0"},
		{"fractional float", NewFloat(2.5), "2.5"},
		{"list", NewList([]Value{NewInt(1), NewString("a")}), "[1, a]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap()
	m.Set("z", NewInt(1))
	m.Set("a", NewInt(2))
	m.Set("m", NewInt(3))
	m.Set("z", NewInt(4)) // update keeps position

	keys := m.Keys()
	want := []string{"z", "a", "m"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if v, _ := m.Get("z"); v.AsInt() != 4 {
		t.Errorf("updated value = %s, want 4", v.String())
	}

	m.Delete("a")
	if m.Len() != 2 {
		t.Errorf("Len() after delete = %d, want 2", m.Len())
	}
}

func TestMarshalJSONKeyOrder(t *testing.T) {
	m := NewOrderedMap()
	m.Set("z", NewInt(1))
	m.Set("a", NewList([]Value{NewString("x"), Null}))
	b, err := NewMap(m).MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON error: %v", err)
	}
	want := `{"z":1,"a":["x",null]}`
	if string(b) != want {
		t.Errorf("MarshalJSON = %s, want %s", b, want)
	}
}

func TestFromGoRoundTrip(t *testing.T) {
	var raw interface{}
	doc := `{"n": 2, "f": 2.5, "s": "x", "b": true, "nil": null, "l": [1, 2]}`
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	v := FromGo(raw)
	m := v.AsMap()

	// Integral JSON numbers fold back to int.
	n, _ := m.Get("n")
	if n.Type() != TypeInt || n.AsInt() != 2 {
		t.Errorf("n = %s (%s), want int 2", n.String(), n.Type())
	}
	f, _ := m.Get("f")
	if f.Type() != TypeFloat {
		t.Errorf("f type = %s, want float", f.Type())
	}

	back := v.ToGo().(map[string]interface{})
	if back["s"] != "x" || back["b"] != true {
		t.Errorf("ToGo round trip = %v", back)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := NewOrderedMap()
	m.Set("list", NewList([]Value{NewInt(1)}))
	original := NewMap(m)

	clone := original.Clone()
	clone.AsMap().Set("list", NewInt(99))

	v, _ := original.AsMap().Get("list")
	if v.Type() != TypeList {
		t.Error("mutating the clone changed the original")
	}
}
