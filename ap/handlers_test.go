package ap

import (
	"testing"

	"github.com/outpostfed/apcore/util"
)

func TestObjectIRIPrefersBareString(t *testing.T) {
	act := util.Activity{"object": []interface{}{"https://example.com/objects/1"}}
	iri, ok := objectIRI(act, "object")
	if !ok || iri != "https://example.com/objects/1" {
		t.Fatalf("objectIRI = %q, %v, want bare string", iri, ok)
	}
}

func TestObjectIRIFallsBackToEmbeddedID(t *testing.T) {
	act := util.Activity{
		"object": []interface{}{
			map[string]interface{}{"id": "https://example.com/objects/2", "type": "Note"},
		},
	}
	iri, ok := objectIRI(act, "object")
	if !ok || iri != "https://example.com/objects/2" {
		t.Fatalf("objectIRI = %q, %v, want embedded id", iri, ok)
	}
}

func TestObjectIRIMissing(t *testing.T) {
	if _, ok := objectIRI(util.Activity{}, "object"); ok {
		t.Fatalf("expected objectIRI to report missing object")
	}
}

func TestDispatchAnnouncePassesThroughUnchanged(t *testing.T) {
	h := &Handlers{}
	act := util.Activity{
		"type":   []interface{}{"Announce"},
		"actor":  []interface{}{"https://example.com/users/alice"},
		"object": []interface{}{"https://example.com/objects/1"},
	}
	out, republish, err := h.Dispatch(util.Context{}, "https://example.com/users/alice", "https://example.com/users/alice", act)
	if err != nil {
		t.Fatalf("Dispatch returned error: %s", err)
	}
	if republish != nil {
		t.Fatalf("expected no republish requests for Announce, got %v", republish)
	}
	objList, ok := out["object"].([]interface{})
	if !ok || len(objList) != 1 || objList[0] != "https://example.com/objects/1" {
		t.Fatalf("expected object left as an IRI list, got %v", out["object"])
	}
}

func TestDispatchUnknownVerbPassesThroughUnchanged(t *testing.T) {
	h := &Handlers{}
	act := util.Activity{
		"type":  []interface{}{"Ignore"},
		"actor": []interface{}{"https://example.com/users/alice"},
	}
	out, republish, err := h.Dispatch(util.Context{}, "https://example.com/users/alice", "https://example.com/users/alice", act)
	if err != nil {
		t.Fatalf("Dispatch returned error: %s", err)
	}
	if republish != nil {
		t.Fatalf("expected no republish requests, got %v", republish)
	}
	if out["type"].([]interface{})[0] != "Ignore" {
		t.Fatalf("expected activity left unchanged")
	}
}

func TestHandleLikeRequiresObject(t *testing.T) {
	h := &Handlers{}
	_, _, err := h.handleLike(util.Context{}, "https://example.com/users/alice", util.Activity{})
	e, ok := AsError(err)
	if !ok || e.Kind != MissingTarget {
		t.Fatalf("expected MissingTarget error, got %v", err)
	}
}

func TestHandleAddRemoveRequiresTargetAndObject(t *testing.T) {
	h := &Handlers{}
	_, _, err := h.handleAddRemove(util.Context{}, "https://example.com/users/alice", util.Activity{}, true)
	e, ok := AsError(err)
	if !ok || e.Kind != MissingTarget {
		t.Fatalf("expected MissingTarget error for missing target, got %v", err)
	}

	act := util.Activity{"target": []interface{}{"https://example.com/actors/u/named/list"}}
	_, _, err = h.handleAddRemove(util.Context{}, "https://example.com/users/alice", act, true)
	e, ok = AsError(err)
	if !ok || e.Kind != MissingTarget {
		t.Fatalf("expected MissingTarget error for missing object, got %v", err)
	}
}

func TestHandleBlockRequiresObject(t *testing.T) {
	h := &Handlers{}
	_, _, err := h.handleBlock(util.Context{}, "https://example.com/users/alice", util.Activity{})
	e, ok := AsError(err)
	if !ok || e.Kind != MissingTarget {
		t.Fatalf("expected MissingTarget error, got %v", err)
	}
}

func TestHandleCreateRequiresEmbeddedObject(t *testing.T) {
	h := &Handlers{}
	_, _, err := h.handleCreate(util.Context{}, "https://example.com/users/alice", "https://example.com/users/alice", util.Activity{})
	e, ok := AsError(err)
	if !ok || e.Kind != InvalidActivity {
		t.Fatalf("expected InvalidActivity error, got %v", err)
	}
}

func TestHandleUpdateRequiresObjectID(t *testing.T) {
	h := &Handlers{}
	act := util.Activity{
		"object": []interface{}{map[string]interface{}{"content": "no id here"}},
	}
	_, _, err := h.handleUpdate(util.Context{}, "https://example.com/users/alice", act)
	e, ok := AsError(err)
	if !ok || e.Kind != InvalidActivity {
		t.Fatalf("expected InvalidActivity error, got %v", err)
	}
}
