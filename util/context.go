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

package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/outpostfed/apcore/paths"
)

const (
	activityContextKey          = "activity"
	actorPathUUIDContextKey     = "actorPathUUID"
	actorIRIContextKey          = "actorIRI"
	completeRequestURLContextKey = "completeRequestURL"
	privateScopeContextKey      = "privateScope"
)

// Activity is the normalized, list-coerced representation of an
// ActivityStreams document as it flows through the pipeline: a plain
// map keyed by property name, where every property except "id" and
// "type" has been coerced to a list.
type Activity map[string]interface{}

type Context struct {
	context.Context
}

// WithActorAPHTTPContext sets the ActorPathUUID, ActorIRI, CompleteRequestURL,
// and PrivateScope for a request scoped to one local actor's outbox or
// collections.
func WithActorAPHTTPContext(scheme, host string, r *http.Request, uuid paths.UUID, authdActorID string) Context {
	c := &Context{r.Context()}
	c.WithActorPathUUID(uuid)
	c.WithActorIRI(paths.UUIDIRIFor(scheme, host, paths.ActorPathKey, uuid))
	c.WithCompleteRequestURL(r, scheme, host)
	c.WithPrivateScope(len(authdActorID) > 0 && authdActorID == string(uuid))
	return *c
}

// WithAPHTTPContext sets the CompleteRequestURL.
func WithAPHTTPContext(scheme, host string, r *http.Request) Context {
	c := &Context{r.Context()}
	c.WithCompleteRequestURL(r, scheme, host)
	return *c
}

// WithActivity attaches the normalized activity being processed by the
// pipeline to the context.
func (c *Context) WithActivity(a Activity) {
	c.Context = context.WithValue(c.Context, activityContextKey, a)
}

// WithActorPathUUID is used for ActivityPub Outbox/Collection contexts.
func (c *Context) WithActorPathUUID(uuid paths.UUID) {
	c.Context = context.WithValue(c.Context, actorPathUUIDContextKey, uuid)
}

// WithActorIRI is used for ActivityPub Outbox/Collection contexts.
func (c *Context) WithActorIRI(id *url.URL) {
	c.Context = context.WithValue(c.Context, actorIRIContextKey, id)
}

// WithCompleteRequestURL is used for all ActivityPub HTTP contexts.
func (c *Context) WithCompleteRequestURL(r *http.Request, scheme, host string) {
	u := *r.URL // Copy
	u.Host = host
	u.Scheme = scheme
	c.Context = context.WithValue(c.Context, completeRequestURLContextKey, &u)
}

// WithPrivateScope is available in all GET http requests.
func (c *Context) WithPrivateScope(b bool) {
	c.Context = context.WithValue(c.Context, privateScopeContextKey, b)
}

// Activity is available once the pipeline has normalized an incoming
// document.
func (c Context) Activity() (a Activity, err error) {
	v := c.Value(activityContextKey)
	var ok bool
	if v == nil {
		err = errors.New("no activity in context")
	} else if a, ok = v.(Activity); !ok {
		err = errors.New("activity in context is not a util.Activity")
	}
	return
}

// ActorPathUUID is used for ActivityPub HTTP contexts.
func (c Context) ActorPathUUID() (s paths.UUID, err error) {
	return c.toUUIDValue("actor path UUID", actorPathUUIDContextKey)
}

// ActorIRI is used for ActivityPub HTTP contexts.
func (c Context) ActorIRI() (s *url.URL, err error) {
	return c.toURLValue("actor IRI", actorIRIContextKey)
}

// CompleteRequestURL is used for ActivityPub HTTP contexts.
func (c Context) CompleteRequestURL() (u *url.URL, err error) {
	return c.toURLValue("complete Request URL", completeRequestURLContextKey)
}

// HasPrivateScope is available in all GET http requests.
func (c *Context) HasPrivateScope() bool {
	v := c.Value(privateScopeContextKey)
	var b, ok bool
	if v == nil {
		return false
	} else if b, ok = v.(bool); !ok {
		return false
	} else {
		return b
	}
}

func (c Context) toUUIDValue(name, key string) (s paths.UUID, err error) {
	v := c.Value(key)
	var ok bool
	if v == nil {
		err = fmt.Errorf("no %s in context", name)
	} else if s, ok = v.(paths.UUID); !ok {
		err = fmt.Errorf("%s in context is not a paths.UUID", name)
	}
	return
}

func (c Context) toURLValue(name, key string) (u *url.URL, err error) {
	v := c.Value(key)
	var ok bool
	if v == nil {
		err = fmt.Errorf("no %s in context", name)
	} else if u, ok = v.(*url.URL); !ok {
		err = fmt.Errorf("%s in context is not a *url.URL", name)
	}
	return
}
