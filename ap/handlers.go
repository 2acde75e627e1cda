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
	"fmt"
	"net/url"
	"time"

	"github.com/outpostfed/apcore/models"
	"github.com/outpostfed/apcore/paths"
	"github.com/outpostfed/apcore/services"
	"github.com/outpostfed/apcore/util"
)

// RepublishRequest asks the outbox pipeline to synthesize and re-enter a
// collection Update activity after a membership change (Accept/Reject
// Follow, Like), per the collection-update synthesis mechanism.
type RepublishRequest struct {
	ActorIRI   string
	Collection *url.URL
}

// Handlers implements C6: the per-verb side effect each normalized activity
// triggers once it reaches the outbox, run after C1 normalization and
// before C4 audience resolution.
type Handlers struct {
	Activities  *services.Activities
	Objects     *services.Objects
	Collections *Collections
	Policies    *services.Policies
	Scheme      string
	Host        string
}

// Dispatch runs the side effect for act's verb, returning the (possibly
// mutated) activity to persist and deliver plus any collection updates to
// republish. Verbs outside the switch (Follow, Flag, Ignore, Dislike, ...)
// fall through to Generic: stored and delivered unchanged.
func (h *Handlers) Dispatch(c util.Context, baseIRI, senderIRI string, act util.Activity) (util.Activity, []RepublishRequest, error) {
	t, _ := TypeOf(act)
	switch t {
	case "Create":
		return h.handleCreate(c, baseIRI, senderIRI, act)
	case "Update":
		return h.handleUpdate(c, senderIRI, act)
	case "Delete":
		return h.handleDelete(c, senderIRI, act)
	case "Undo":
		return h.handleUndo(c, senderIRI, act)
	case "Accept":
		return h.handleAcceptReject(c, senderIRI, act, true)
	case "Reject":
		return h.handleAcceptReject(c, senderIRI, act, false)
	case "Like":
		return h.handleLike(c, senderIRI, act)
	case "Announce":
		// Must not denormalize the referenced object: object stays an IRI
		// list, persisted and delivered as received.
		return act, nil, nil
	case "Add":
		return h.handleAddRemove(c, senderIRI, act, true)
	case "Remove":
		return h.handleAddRemove(c, senderIRI, act, false)
	case "Block":
		return h.handleBlock(c, senderIRI, act)
	default:
		return act, nil, nil
	}
}

func objectIRI(act util.Activity, key string) (string, bool) {
	if s, ok := FirstString(act, key); ok {
		return s, true
	}
	if obj, ok := FirstObject(act, key); ok {
		if s, ok := obj["id"].(string); ok && len(s) > 0 {
			return s, true
		}
	}
	return "", false
}

// handleCreate embeds the new object in the store and in the activity
// itself, defaulting attributedTo to the sending actor.
func (h *Handlers) handleCreate(c util.Context, baseIRI, senderIRI string, act util.Activity) (util.Activity, []RepublishRequest, error) {
	obj, ok := FirstObject(act, "object")
	if !ok {
		return nil, nil, newError(InvalidActivity, "create has no embedded object")
	}
	if _, ok := obj["attributedTo"]; !ok {
		obj["attributedTo"] = []interface{}{senderIRI}
	}
	SanitizeObject(obj)
	iri, err := h.Objects.Save(c, baseIRI, obj)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to store created object", err)
	}
	obj["id"] = iri
	SetSingleton(act, "object", map[string]interface{}(obj))
	return act, nil, nil
}

// handleUpdate merges the embedded partial object into the stored record
// and propagates the change into every activity that embeds a copy of it.
func (h *Handlers) handleUpdate(c util.Context, senderIRI string, act util.Activity) (util.Activity, []RepublishRequest, error) {
	partial, ok := FirstObject(act, "object")
	if !ok {
		return nil, nil, newError(InvalidActivity, "update has no embedded object")
	}
	objIRI, ok := partial["id"].(string)
	if !ok || len(objIRI) == 0 {
		return nil, nil, newError(InvalidActivity, "update's object has no id")
	}
	existing, err := h.Objects.Get(c, objIRI)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to fetch object to update", err)
	}
	owner, err := services.AttributedTo(existing)
	if err != nil || owner != senderIRI {
		return nil, nil, newError(OwnershipViolation, "sender does not own updated object")
	}
	SanitizeObject(partial)
	merged, err := h.Objects.Update(c, objIRI, partial)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to update object", err)
	}
	if _, err := h.Activities.UpdateObjectInActivities(c, merged); err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to propagate object update", err)
	}
	SetSingleton(act, "object", map[string]interface{}(merged))
	return act, nil, nil
}

// handleDelete tombstones the targeted object. A Delete of an already
// tombstoned object is a silent no-op, checked before ownership since a
// Tombstone carries no attributedTo to check against.
func (h *Handlers) handleDelete(c util.Context, senderIRI string, act util.Activity) (util.Activity, []RepublishRequest, error) {
	objIRI, ok := objectIRI(act, "object")
	if !ok {
		return nil, nil, newError(InvalidActivity, "delete has no object")
	}
	existing, err := h.Objects.Get(c, objIRI)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to fetch object to delete", err)
	}
	if t, _ := TypeOf(existing); t == "Tombstone" {
		SetSingleton(act, "object", map[string]interface{}(existing))
		return act, nil, nil
	}
	owner, err := services.AttributedTo(existing)
	if err != nil || owner != senderIRI {
		return nil, nil, newError(OwnershipViolation, "sender does not own deleted object")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tomb, err := h.Objects.Tombstone(c, objIRI, now, now, existing["published"])
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to tombstone object", err)
	}
	if _, err := h.Activities.UpdateObjectInActivities(c, tomb); err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to propagate tombstone", err)
	}
	SetSingleton(act, "object", map[string]interface{}(tomb))
	return act, nil, nil
}

// handleUndo checks that the sender owns the undone activity, removes that
// activity's own IRI from every collection it is tagged into, and then
// deletes it. Entries its side effect added under other IRIs (the liked
// object, the accepted follower, the blocked actor and its block policy)
// are not removed.
func (h *Handlers) handleUndo(c util.Context, senderIRI string, act util.Activity) (util.Activity, []RepublishRequest, error) {
	undoneIRI, ok := objectIRI(act, "object")
	if !ok {
		return nil, nil, newError(InvalidActivity, "undo has no object")
	}
	undone, err := h.Activities.Get(c, undoneIRI)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to fetch undone activity", err)
	}
	actorIRI, ok := FirstString(undone, "actor")
	if !ok || actorIRI != senderIRI {
		return nil, nil, newError(OwnershipViolation, "sender does not own undone activity")
	}
	undoneURL, err := url.Parse(undoneIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "undone activity iri does not parse", err)
	}
	cols, err := h.Collections.CollectionsContaining(c, undoneURL)
	if err != nil {
		return nil, nil, err
	}
	for _, colIRI := range cols {
		colURL, perr := url.Parse(colIRI)
		if perr != nil {
			continue
		}
		if err := h.Collections.Remove(c, colURL, undoneURL); err != nil {
			return nil, nil, err
		}
	}
	if err := h.Activities.Delete(c, undoneIRI); err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to delete undone activity", err)
	}
	return act, nil, nil
}

// handleAcceptReject resolves the Follow being answered and moves the
// follower into (Accept) or out of and onto a per-actor rejected named
// collection from (Reject) the sender's followers collection.
func (h *Handlers) handleAcceptReject(c util.Context, senderIRI string, act util.Activity, accept bool) (util.Activity, []RepublishRequest, error) {
	followIRI, ok := objectIRI(act, "object")
	if !ok {
		return nil, nil, newError(MissingTarget, "accept/reject has no object")
	}
	follow, err := h.Activities.Get(c, followIRI)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to fetch follow activity", err)
	}
	followerIRI, ok := FirstString(follow, "actor")
	if !ok {
		return nil, nil, newError(InvalidActivity, "follow activity has no actor")
	}
	senderURL, err := url.Parse(senderIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "sender iri does not parse", err)
	}
	followerURL, err := url.Parse(followerIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "follower iri does not parse", err)
	}
	followersIRI, err := paths.IRIForActorID(paths.FollowersPathKey, senderURL)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to build followers collection iri", err)
	}
	if accept {
		if err := h.Collections.Insert(c, followersIRI, followerURL); err != nil {
			return nil, nil, err
		}
	} else {
		if err := h.Collections.Remove(c, followersIRI, followerURL); err != nil {
			return nil, nil, err
		}
		if uuid, uerr := paths.UUIDFromActorPath(senderURL.Path); uerr == nil {
			rejected := paths.NamedCollectionIRIFor(h.Scheme, h.Host, paths.NamedPathKey, uuid, "rejected")
			if err := h.Collections.Insert(c, rejected, followerURL); err != nil {
				return nil, nil, err
			}
		}
	}
	return act, []RepublishRequest{{ActorIRI: senderIRI, Collection: followersIRI}}, nil
}

// handleLike requires a target object, tags it into the sender's liked
// collection, and embeds the liked object for local rendering.
func (h *Handlers) handleLike(c util.Context, senderIRI string, act util.Activity) (util.Activity, []RepublishRequest, error) {
	objIRI, ok := objectIRI(act, "object")
	if !ok {
		return nil, nil, newError(MissingTarget, "like has no object")
	}
	obj, err := h.Objects.Get(c, objIRI)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to fetch liked object", err)
	}
	senderURL, err := url.Parse(senderIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "sender iri does not parse", err)
	}
	objURL, err := url.Parse(objIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "liked object iri does not parse", err)
	}
	likedIRI, err := paths.IRIForActorID(paths.LikedPathKey, senderURL)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to build liked collection iri", err)
	}
	if err := h.Collections.Insert(c, likedIRI, objURL); err != nil {
		return nil, nil, err
	}
	SetSingleton(act, "object", map[string]interface{}(obj))
	return act, []RepublishRequest{{ActorIRI: senderIRI, Collection: likedIRI}}, nil
}

// handleAddRemove requires both a target collection and an object, and
// requires the sender own the target collection (it must be one of the
// sender's own actor-scoped or named collections).
func (h *Handlers) handleAddRemove(c util.Context, senderIRI string, act util.Activity, add bool) (util.Activity, []RepublishRequest, error) {
	targetIRI, ok := FirstString(act, "target")
	if !ok {
		return nil, nil, newError(MissingTarget, "add/remove has no target")
	}
	objIRI, ok := objectIRI(act, "object")
	if !ok {
		return nil, nil, newError(MissingTarget, "add/remove has no object")
	}
	senderURL, err := url.Parse(senderIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "sender iri does not parse", err)
	}
	targetURL, err := url.Parse(targetIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "target iri does not parse", err)
	}
	senderUUID, err := paths.UUIDFromActorPath(senderURL.Path)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "sender iri is not actor-scoped", err)
	}
	targetUUID, err := paths.UUIDFromActorPath(targetURL.Path)
	if err != nil || targetUUID != senderUUID {
		return nil, nil, newError(OwnershipViolation, "sender does not own add/remove target")
	}
	objURL, err := url.Parse(objIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "object iri does not parse", err)
	}
	if add {
		if err := h.Collections.Insert(c, targetURL, objURL); err != nil {
			return nil, nil, err
		}
	} else if err := h.Collections.Remove(c, targetURL, objURL); err != nil {
		return nil, nil, err
	}
	return act, nil, nil
}

// handleBlock tags the blocked actor into the sender's blocked collection
// and installs a federated-block policy matching it as an activity actor,
// the same matcher shape the Audience Resolver's isBlocked probe exercises.
// to/cc are stripped so the Block itself is never federated to its target.
func (h *Handlers) handleBlock(c util.Context, senderIRI string, act util.Activity) (util.Activity, []RepublishRequest, error) {
	blockedIRI, ok := FirstString(act, "object")
	if !ok {
		return nil, nil, newError(MissingTarget, "block has no object")
	}
	senderURL, err := url.Parse(senderIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "sender iri does not parse", err)
	}
	blockedURL, err := url.Parse(blockedIRI)
	if err != nil {
		return nil, nil, wrapError(InvalidActivity, "blocked actor iri does not parse", err)
	}
	blockedCollIRI, err := paths.IRIForActorID(paths.BlockedPathKey, senderURL)
	if err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to build blocked collection iri", err)
	}
	if err := h.Collections.Insert(c, blockedCollIRI, blockedURL); err != nil {
		return nil, nil, err
	}
	policy := models.Policy{
		Name:        fmt.Sprintf("block %s", blockedIRI),
		Description: "federated block created via Block activity",
		Matchers: []*models.KVMatcher{
			{
				KeyPathQuery: "actor.0",
				ValueMatcher: &models.UnaryMatcher{
					Value: &models.Value{EqualsString: blockedIRI},
				},
			},
		},
	}
	if _, err := h.Policies.Create(c, models.CreatePolicy{
		ActorID: senderURL,
		Purpose: models.FederatedBlockPurpose,
		Policy:  policy,
	}); err != nil {
		return nil, nil, wrapError(StoreFailure, "failed to store block policy", err)
	}
	delete(act, "to")
	delete(act, "cc")
	return act, nil, nil
}
