package ap

import (
	"reflect"
	"testing"

	"github.com/outpostfed/apcore/util"
)

func TestNormalizeCoercesScalarsToLists(t *testing.T) {
	raw := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Create",
		"actor":    "https://example.com/users/alice",
		"to":       []interface{}{"https://example.com/users/bob"},
	}
	act, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %s", err)
	}
	if _, ok := act["@context"]; ok {
		t.Fatalf("expected @context to be stripped")
	}
	if act["type"] != "Create" {
		t.Fatalf("expected type to stay scalar, got %v", act["type"])
	}
	actor, ok := act["actor"].([]interface{})
	if !ok || len(actor) != 1 || actor[0] != "https://example.com/users/alice" {
		t.Fatalf("expected actor coerced to single-element list, got %v", act["actor"])
	}
}

func TestNormalizeRejectsMissingType(t *testing.T) {
	_, err := Normalize(map[string]interface{}{"actor": "https://example.com/users/alice"})
	e, ok := AsError(err)
	if !ok || e.Kind != InvalidActivity {
		t.Fatalf("expected InvalidActivity error, got %v", err)
	}
}

func TestNormalizeRejectsActivityVerbWithoutActor(t *testing.T) {
	_, err := Normalize(map[string]interface{}{"type": "Create"})
	e, ok := AsError(err)
	if !ok || e.Kind != InvalidActivity {
		t.Fatalf("expected InvalidActivity error, got %v", err)
	}
}

func TestIsBareObjectAndWrapInCreate(t *testing.T) {
	note, err := Normalize(map[string]interface{}{"type": "Note", "content": "hi"})
	if err != nil {
		t.Fatalf("Normalize returned error: %s", err)
	}
	if !IsBareObject(note) {
		t.Fatalf("expected Note to be a bare object")
	}
	create := WrapInCreate("https://example.com/users/alice", note)
	if typ, _ := TypeOf(create); typ != "Create" {
		t.Fatalf("expected wrapped type Create, got %s", typ)
	}
	actor, ok := FirstString(create, "actor")
	if !ok || actor != "https://example.com/users/alice" {
		t.Fatalf("expected actor set to wrapping actor, got %v", create["actor"])
	}
	obj, ok := FirstObject(create, "object")
	if !ok || obj["content"] == nil {
		t.Fatalf("expected embedded object to carry original content")
	}
}

func TestDenormalizeCollapsesSingleElementLists(t *testing.T) {
	act := util.Activity{
		"id":    "https://example.com/activities/1",
		"type":  "Create",
		"actor": []interface{}{"https://example.com/users/alice"},
		"to":    []interface{}{"https://example.com/users/bob", "https://example.com/users/carol"},
	}
	out := Denormalize(act)
	if out["@context"] != "https://www.w3.org/ns/activitystreams" {
		t.Fatalf("expected @context to be attached")
	}
	if out["actor"] != "https://example.com/users/alice" {
		t.Fatalf("expected single-element actor collapsed to scalar, got %v", out["actor"])
	}
	to, ok := out["to"].([]interface{})
	if !ok || len(to) != 2 {
		t.Fatalf("expected multi-element to left as a list, got %v", out["to"])
	}
	if out["id"] != act["id"] {
		t.Fatalf("expected id left untouched")
	}
}

func TestStringListSkipsEmbeddedObjects(t *testing.T) {
	act := util.Activity{
		"to": []interface{}{
			"https://example.com/users/bob",
			map[string]interface{}{"id": "https://example.com/users/carol"},
		},
	}
	got := StringList(act, "to")
	want := []string{"https://example.com/users/bob"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("StringList = %v, want %v", got, want)
	}
}
