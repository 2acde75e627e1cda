package models

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestPolicyResolveMatchesBlockedActor(t *testing.T) {
	p := Policy{
		Name: "block example",
		Matchers: []*KVMatcher{
			{
				KeyPathQuery: "actor.0",
				ValueMatcher: &UnaryMatcher{
					Value: &Value{EqualsString: "https://evil.example/users/mallory"},
				},
			},
		},
	}
	doc := []byte(`{"id":"https://evil.example/users/mallory","actor":["https://evil.example/users/mallory"]}`)
	var r Resolution
	if err := p.Resolve(doc, &r); err != nil {
		t.Fatalf("Resolve returned error: %s", err)
	}
	if !r.Matched {
		t.Fatalf("expected policy to match blocked actor")
	}
}

func TestPolicyResolveNoMatchForOtherActor(t *testing.T) {
	p := Policy{
		Name: "block example",
		Matchers: []*KVMatcher{
			{
				KeyPathQuery: "actor.0",
				ValueMatcher: &UnaryMatcher{
					Value: &Value{EqualsString: "https://evil.example/users/mallory"},
				},
			},
		},
	}
	doc := []byte(`{"id":"https://good.example/activities/1","actor":["https://good.example/users/alice"]}`)
	var r Resolution
	if err := p.Resolve(doc, &r); err != nil {
		t.Fatalf("Resolve returned error: %s", err)
	}
	if r.Matched {
		t.Fatalf("expected policy not to match an unrelated actor")
	}
}

func TestUnaryMatcherNotInvertsResult(t *testing.T) {
	m := UnaryMatcher{
		Not: &UnaryMatcher{
			Value: &Value{EqualsString: "https://evil.example/users/mallory"},
		},
	}
	var r Resolution
	ok, err := m.Match(gjson.GetBytes([]byte(`{"actor":"https://good.example/users/alice"}`), "actor"), nil, &r)
	if err != nil {
		t.Fatalf("Match returned error: %s", err)
	}
	if !ok {
		t.Fatalf("expected NOT(EQUALS(mallory)) to match a non-mallory actor")
	}
}

func TestValueMatchLenGreater(t *testing.T) {
	n := 1
	v := Value{LenGreater: &n}
	var r Resolution
	ok, err := v.Match(gjson.GetBytes([]byte(`{"to":["a","b"]}`), "to"), nil, &r)
	if err != nil {
		t.Fatalf("Match returned error: %s", err)
	}
	if !ok {
		t.Fatalf("expected a 2-element array to satisfy LenGreater(1)")
	}
}

func TestValueValidateRejectsMultipleFields(t *testing.T) {
	v := Value{EqualsString: "a", ContainsString: "b"}
	if err := v.Validate(); err == nil {
		t.Fatalf("expected Validate to reject a Value with more than one field set")
	}
}

func TestValueValidateRejectsEmptyValue(t *testing.T) {
	if err := (Value{}).Validate(); err == nil {
		t.Fatalf("expected Validate to reject a Value with no fields set")
	}
}
