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
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/outpostfed/apcore/framework/conn"
	"github.com/outpostfed/apcore/services"
	"github.com/outpostfed/apcore/util"
)

// activityMediaTypes are the content types the outbox POST route accepts;
// anything else is rejected as 404 to match the historical surface rather
// than the more correct 415.
var activityMediaTypes = map[string]bool{
	"application/activity+json": true,
	`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`: true,
}

// Pipeline implements C5: it wires normalization, actor/audience
// resolution, verb dispatch, persistence, and delivery into the single
// sequence a POST to an actor's outbox runs through, and serves GET reads
// of the outbox collection.
type Pipeline struct {
	Actors      *services.Actors
	Activities  *services.Activities
	Objects     *services.Objects
	Collections *Collections
	ActorRes    *ActorResolver
	AudienceRes *AudienceResolver
	Handlers    *Handlers
	Delivery    *DeliveryEngine
	Events      *EventBus
	Controller  *conn.Controller
	PrivateKeys *services.PrivateKeys

	Scheme          string
	Host            string
	DefaultPageSize int
	MaxPageSize     int
}

// RegisterRoutes wires the outbox POST/GET surface onto a router.
func (p *Pipeline) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/outbox/{actor}", p.PostOutbox).Methods(http.MethodPost)
	r.HandleFunc("/outbox/{actor}", p.GetOutbox).Methods(http.MethodGet)
}

// outboxIRI builds the canonical collection IRI an actor's outbox is
// addressed and tagged under: the externally visible /outbox/:actor route,
// not the actor's own /actors/{uuid} IRI space.
func (p *Pipeline) outboxIRI(username string) *url.URL {
	return &url.URL{Scheme: p.Scheme, Host: p.Host, Path: "/outbox/" + username}
}

// PostOutbox runs the full C5 sequence against an incoming request body.
func (p *Pipeline) PostOutbox(w http.ResponseWriter, r *http.Request) {
	c := util.WithAPHTTPContext(p.Scheme, p.Host, r)
	username := mux.Vars(r)["actor"]

	if !activityMediaTypes[r.Header.Get("Content-Type")] {
		http.Error(w, "unsupported media type", http.StatusNotFound)
		return
	}

	la, err := p.Actors.GetByUsername(c, username)
	if err != nil {
		http.Error(w, fmt.Sprintf("'%s' not found on this instance", username), http.StatusNotFound)
		return
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}
	act, err := Normalize(raw)
	if err != nil {
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}
	if IsBareObject(act) {
		act = WrapInCreate(la.IRI, act)
	}

	act, republish, err := p.Handlers.Dispatch(c, la.IRI, la.IRI, act)
	if err != nil {
		p.writeError(w, err)
		return
	}

	obj, _ := FirstObject(act, "object")
	if err := p.publish(c, username, la.IRI, act, obj); err != nil {
		p.writeError(w, err)
		return
	}

	for _, req := range republish {
		if err := p.republishCollection(c, req); err != nil {
			util.ErrorLogger.Errorf("failed to republish collection update for %s: %s", req.Collection, err)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// publish persists act tagged into the actor's outbox, expands its
// audience, enqueues delivery to each recipient, and emits the outbox
// event, in that order, matching the ordering guarantee that an observer
// of the event sees an activity and its side effects already durable.
func (p *Pipeline) publish(c util.Context, username, actorIRI string, act, obj util.Activity) error {
	iri, err := p.Activities.Save(c, actorIRI, act)
	if err != nil {
		return wrapError(StoreFailure, "failed to persist activity", err)
	}
	act["id"] = iri

	activityURL, err := url.Parse(iri)
	if err != nil {
		return wrapError(StoreFailure, "persisted activity iri does not parse", err)
	}
	if err := p.Collections.Insert(c, p.outboxIRI(username), activityURL); err != nil {
		return err
	}

	if err := p.deliver(c, actorIRI, act); err != nil {
		util.ErrorLogger.Errorf("audience expansion/delivery failed for %s: %s", iri, err)
	}

	p.Events.Publish(OutboxEvent{Actor: actorIRI, Activity: act, Object: obj})
	return nil
}

// deliver expands the audience and enqueues one delivery job per recipient.
// Failures here are logged, not surfaced to the HTTP client: the POST
// already succeeded once the activity is durable.
func (p *Pipeline) deliver(c util.Context, actorIRI string, act util.Activity) error {
	privKey, pubKeyID, err := p.PrivateKeys.GetActorHTTPSignatureKey(c, actorIRI)
	if err != nil {
		return wrapError(StoreFailure, "failed to load signing key for delivery", err)
	}
	t, err := p.Controller.Get(privKey, pubKeyID)
	if err != nil {
		return wrapError(StoreFailure, "failed to build signing transport", err)
	}
	recipients, err := p.AudienceRes.Resolve(c, actorIRI, act, t)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Denormalize(StripPrivateFields(act)))
	if err != nil {
		return wrapError(StoreFailure, "failed to serialize activity for delivery", err)
	}
	for _, recipient := range recipients {
		if err := p.Delivery.Enqueue(c, actorIRI, string(payload), recipient.Inbox); err != nil {
			util.ErrorLogger.Errorf("failed to enqueue delivery to %s: %s", recipient.Inbox, err)
		}
	}
	return nil
}

// republishCollection builds the synthetic Update(collection) activity a
// membership change requires and feeds it back into the pipeline as if the
// owning actor had posted it, skipping verb dispatch: a collection summary
// is not itself a handler-addressable object.
func (p *Pipeline) republishCollection(c util.Context, req RepublishRequest) error {
	summary, err := p.Collections.Summary(c, req.Collection)
	if err != nil {
		return err
	}
	act := BuildCollectionUpdate(req.ActorIRI, summary)
	username, err := p.usernameForActor(c, req.ActorIRI)
	if err != nil {
		return err
	}
	return p.publish(c, username, req.ActorIRI, act, nil)
}

func (p *Pipeline) usernameForActor(c util.Context, actorIRI string) (string, error) {
	la, err := p.Actors.GetByIRI(c, actorIRI)
	if err != nil {
		return "", wrapError(StoreFailure, "failed to resolve actor for republish", err)
	}
	return la.PreferredUsername, nil
}

// GetOutbox serves the OrderedCollection summary, or one OrderedCollectionPage
// when a page query parameter is present.
func (p *Pipeline) GetOutbox(w http.ResponseWriter, r *http.Request) {
	c := util.WithAPHTTPContext(p.Scheme, p.Host, r)
	username := mux.Vars(r)["actor"]

	if _, err := p.Actors.GetByUsername(c, username); err != nil {
		http.Error(w, fmt.Sprintf("'%s' not found on this instance", username), http.StatusNotFound)
		return
	}

	requestIRI, err := c.CompleteRequestURL()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/activity+json")
	if len(r.URL.Query()) == 0 {
		summary, err := p.Collections.Summary(c, p.outboxIRI(username))
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(summary)
		return
	}
	page, err := p.Collections.Page(c, requestIRI, p.DefaultPageSize, p.MaxPageSize)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(page)
}

func (p *Pipeline) writeError(w http.ResponseWriter, err error) {
	if e, ok := AsError(err); ok {
		http.Error(w, e.Msg, e.Kind.HTTPStatus())
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
