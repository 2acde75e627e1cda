// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2020 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ap

import (
	"github.com/outpostfed/apcore/util"
)

// scalarKeys are left untouched by list coercion: the store and router
// index directly on these, and @context is stripped entirely rather than
// carried internally.
var scalarKeys = map[string]bool{
	"id":   true,
	"type": true,
}

// activityVerbs is the closed set of ActivityStreams types this pipeline
// treats as activities rather than bare objects needing a synthetic Create
// wrapper. A type outside this set (Note, Image, Actor subtypes, ...) is an
// object.
var activityVerbs = map[string]bool{
	"Create":            true,
	"Update":            true,
	"Delete":            true,
	"Undo":              true,
	"Follow":            true,
	"Accept":            true,
	"Reject":            true,
	"TentativeAccept":   true,
	"TentativeReject":   true,
	"Like":              true,
	"Dislike":           true,
	"Announce":          true,
	"Add":               true,
	"Remove":            true,
	"Block":             true,
	"Flag":              true,
	"Ignore":            true,
	"Join":              true,
	"Leave":             true,
	"Listen":            true,
	"Move":              true,
	"Invite":            true,
	"Arrive":            true,
	"Travel":            true,
	"View":              true,
	"Read":              true,
	"Question":          true,
}

// Normalize coerces a decoded JSON document into the canonical shape: every
// property except id/type becomes a list, @context is stripped, and
// language-map/typed-value shapes are preserved as list elements. Returns
// InvalidActivity if the document lacks a type, or lacks an actor while its
// type is a known activity verb.
func Normalize(raw map[string]interface{}) (util.Activity, error) {
	t, ok := firstTypeValue(raw["type"])
	if !ok || len(t) == 0 {
		return nil, newError(InvalidActivity, "document has no type")
	}
	a := make(util.Activity, len(raw))
	for k, v := range raw {
		if k == "@context" {
			continue
		}
		if scalarKeys[k] {
			a[k] = v
			continue
		}
		a[k] = coerceList(v)
	}
	if IsActivityVerb(t) {
		if _, ok := a["actor"]; !ok {
			return nil, newError(InvalidActivity, "activity has no actor")
		}
	}
	return a, nil
}

// IsActivityVerb reports whether a type string names a known activity verb
// as opposed to a plain object type.
func IsActivityVerb(t string) bool {
	return activityVerbs[t]
}

// IsBareObject reports whether a normalized document is missing an
// activity verb and should be wrapped in a synthetic Create.
func IsBareObject(a util.Activity) bool {
	t, ok := firstTypeValue(a["type"])
	if !ok {
		return true
	}
	return !IsActivityVerb(t)
}

// WrapInCreate wraps a bare object in a synthetic Create sharing its
// to/cc/bto/bcc/audience fields, per the pipeline's bare-object handling.
func WrapInCreate(actor string, obj util.Activity) util.Activity {
	create := util.Activity{
		"type":   "Create",
		"actor":  []interface{}{actor},
		"object": []interface{}{map[string]interface{}(obj)},
	}
	for _, field := range []string{"to", "cc", "bto", "bcc", "audience", "published"} {
		if v, ok := obj[field]; ok {
			create[field] = v
		}
	}
	return create
}

// coerceList turns a scalar value into a single-element list, and passes an
// already-list value through unchanged. Maps (language maps, typed values)
// are themselves wrapped as a single list element, never flattened.
func coerceList(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case nil:
		return nil
	default:
		return []interface{}{t}
	}
}

// firstTypeValue extracts the first (and normally only) type string from
// either a raw scalar or an already-coerced list value.
func firstTypeValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []interface{}:
		if len(t) == 0 {
			return "", false
		}
		s, ok := t[0].(string)
		return s, ok
	default:
		return "", false
	}
}

// StringList extracts the IRI/string values of a normalized list property,
// skipping elements that are embedded objects rather than bare strings.
func StringList(a util.Activity, key string) []string {
	v, ok := a[key]
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// FirstString returns the first string value of a normalized list property.
func FirstString(a util.Activity, key string) (string, bool) {
	l := StringList(a, key)
	if len(l) == 0 {
		return "", false
	}
	return l[0], true
}

// FirstObject returns the first element of a list property that is itself
// an embedded object, as opposed to a bare IRI string.
func FirstObject(a util.Activity, key string) (util.Activity, bool) {
	v, ok := a[key]
	if !ok {
		return nil, false
	}
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return nil, false
	}
	m, ok := list[0].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return util.Activity(m), true
}

// TypeOf returns the first type string of a normalized document.
func TypeOf(a util.Activity) (string, bool) {
	return firstTypeValue(a["type"])
}

// Denormalize converts a normalized activity into the external, de-normalized
// document handed to the Delivery Engine: every single-element list
// collapses back to its sole value and the ActivityStreams context is
// attached. The canonical store always keeps the list-coerced internal
// form; denormalization happens only at the point of serialization.
func Denormalize(a util.Activity) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+1)
	out["@context"] = "https://www.w3.org/ns/activitystreams"
	for k, v := range a {
		if scalarKeys[k] {
			out[k] = v
			continue
		}
		if list, ok := v.([]interface{}); ok && len(list) == 1 {
			out[k] = list[0]
			continue
		}
		out[k] = v
	}
	return out
}

// SetSingleton replaces a property with a single-element list, the form
// used when a handler resolves an IRI reference into an embedded object
// (Create, Like) or needs to overwrite a property wholesale.
func SetSingleton(a util.Activity, key string, v interface{}) {
	a[key] = []interface{}{v}
}
