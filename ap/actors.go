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
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/outpostfed/apcore/framework/conn"
	"github.com/outpostfed/apcore/services"
	"github.com/outpostfed/apcore/util"
)

// ResolvedActor is the projection of an actor (local or remote) that the
// Audience Resolver and Delivery Engine need: enough to pick an inbox and
// verify ownership, never private key material.
type ResolvedActor struct {
	IRI          string
	Inbox        string
	SharedInbox  string
	PublicKeyPEM string
	Local        bool
	// Gone is set when the remote actor resolved to a 410/Tombstone; the
	// caller should drop this recipient rather than treat it as an error.
	Gone bool
}

type cachedActor struct {
	actor   ResolvedActor
	expires time.Time
}

// ActorResolver implements C3: local lookups hit the actor registry, remote
// lookups dereference the actor's IRI through a caller-supplied signed (or
// anonymous) transport and cache the result for ttl.
type ActorResolver struct {
	local *services.Actors
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cachedActor

	// keyMu serializes concurrent resolutions of the same IRI so a cache
	// stampede doesn't issue N identical remote fetches.
	keyMuMu sync.Mutex
	keyMu   map[string]*sync.Mutex

	sweepStop chan struct{}
	sweepWg   sync.WaitGroup
}

// NewActorResolver builds a resolver caching remote lookups for ttl.
func NewActorResolver(local *services.Actors, ttl time.Duration) *ActorResolver {
	return &ActorResolver{
		local: local,
		ttl:   ttl,
		cache: make(map[string]cachedActor),
		keyMu: make(map[string]*sync.Mutex),
	}
}

// Start begins the periodic cache sweep that evicts expired entries.
func (r *ActorResolver) Start() {
	r.sweepStop = make(chan struct{})
	r.sweepWg.Add(1)
	go func() {
		defer r.sweepWg.Done()
		t := time.NewTicker(r.ttl)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				r.sweep()
			case <-r.sweepStop:
				return
			}
		}
	}()
}

// Stop halts the cache sweep goroutine.
func (r *ActorResolver) Stop() {
	if r.sweepStop == nil {
		return
	}
	close(r.sweepStop)
	r.sweepWg.Wait()
}

func (r *ActorResolver) sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.cache {
		if now.After(v.expires) {
			delete(r.cache, k)
		}
	}
}

// Resolve returns the actor at iri, trying the local registry first and
// falling back to a cached or fresh remote dereference. t is used only for
// the remote path; local hits never touch the network.
func (r *ActorResolver) Resolve(c util.Context, iri string, t conn.Transport) (ResolvedActor, error) {
	if la, err := r.local.GetByIRI(c, iri); err == nil {
		return ResolvedActor{
			IRI:          la.IRI,
			Inbox:        la.Inbox,
			PublicKeyPEM: la.PublicKeyPEM,
			Local:        true,
		}, nil
	}

	if ra, ok := r.fromCache(iri); ok {
		return ra, nil
	}

	mu := r.singleflightLock(iri)
	defer mu.Unlock()

	// Another goroutine may have populated the cache while we waited for
	// the lock; check again before issuing a duplicate fetch.
	if ra, ok := r.fromCache(iri); ok {
		return ra, nil
	}

	ra, err := r.fetchRemote(c, iri, t)
	if err != nil {
		return ResolvedActor{}, err
	}
	r.mu.Lock()
	r.cache[iri] = cachedActor{actor: ra, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return ra, nil
}

func (r *ActorResolver) fromCache(iri string) (ResolvedActor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[iri]
	if !ok || time.Now().After(e.expires) {
		return ResolvedActor{}, false
	}
	return e.actor, true
}

func (r *ActorResolver) singleflightLock(iri string) *sync.Mutex {
	r.keyMuMu.Lock()
	mu, ok := r.keyMu[iri]
	if !ok {
		mu = &sync.Mutex{}
		r.keyMu[iri] = mu
	}
	r.keyMuMu.Unlock()
	mu.Lock()
	return mu
}

func (r *ActorResolver) fetchRemote(c util.Context, iri string, t conn.Transport) (ResolvedActor, error) {
	u, err := url.Parse(iri)
	if err != nil {
		return ResolvedActor{}, wrapError(UpstreamFetchFailure, "invalid actor iri", err)
	}
	b, err := t.Dereference(c, u)
	if err != nil {
		if strings.Contains(err.Error(), "(410)") {
			return ResolvedActor{IRI: iri, Gone: true}, nil
		}
		return ResolvedActor{}, wrapError(UpstreamFetchFailure, "failed to dereference actor", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return ResolvedActor{}, wrapError(UpstreamFetchFailure, "actor document is not valid json", err)
	}
	if typ, _ := doc["type"].(string); typ == "Tombstone" {
		return ResolvedActor{IRI: iri, Gone: true}, nil
	}
	return actorFromDocument(doc), nil
}

func actorFromDocument(doc map[string]interface{}) ResolvedActor {
	ra := ResolvedActor{}
	if id, ok := doc["id"].(string); ok {
		ra.IRI = id
	}
	if inbox, ok := doc["inbox"].(string); ok {
		ra.Inbox = inbox
	}
	if endpoints, ok := doc["endpoints"].(map[string]interface{}); ok {
		if si, ok := endpoints["sharedInbox"].(string); ok {
			ra.SharedInbox = si
		}
	}
	if pk, ok := doc["publicKey"].(map[string]interface{}); ok {
		if pem, ok := pk["publicKeyPem"].(string); ok {
			ra.PublicKeyPEM = pem
		}
	}
	return ra
}

// InboxFor returns the preferred delivery endpoint: the shared inbox when
// present, otherwise the actor's own inbox.
func (ra ResolvedActor) InboxFor() string {
	if len(ra.SharedInbox) > 0 {
		return ra.SharedInbox
	}
	return ra.Inbox
}
