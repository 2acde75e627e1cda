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
	"net/url"

	"github.com/outpostfed/apcore/framework/conn"
	"github.com/outpostfed/apcore/paths"
	"github.com/outpostfed/apcore/services"
	"github.com/outpostfed/apcore/util"
)

var audienceFields = []string{"to", "cc", "bto", "bcc", "audience"}

// Recipient is one expanded delivery target: the owning actor IRI plus the
// inbox URL resolved for it.
type Recipient struct {
	ActorIRI string
	Inbox    string
}

// AudienceResolver implements C4: it turns an activity's recipient fields
// into a deduplicated set of inbox URLs, expanding follower collections and
// filtering blocked actors along the way.
type AudienceResolver struct {
	collections *Collections
	actors      *ActorResolver
	policies    *services.Policies
	pageSize    int
}

// NewAudienceResolver builds an AudienceResolver.
func NewAudienceResolver(collections *Collections, actors *ActorResolver, policies *services.Policies, pageSize int) *AudienceResolver {
	return &AudienceResolver{
		collections: collections,
		actors:      actors,
		policies:    policies,
		pageSize:    pageSize,
	}
}

// Resolve expands an activity's audience into deduplicated delivery
// recipients, dropping the sender, blocked actors, and duplicates.
// Upstream fetch failures for an individual candidate are logged and the
// candidate skipped, rather than failing the whole expansion.
func (ar *AudienceResolver) Resolve(c util.Context, senderIRI string, act util.Activity, t conn.Transport) ([]Recipient, error) {
	candidates := ar.unionFields(act)

	expanded := make(map[string]bool, len(candidates))
	for _, iri := range candidates {
		u, err := url.Parse(iri)
		if err != nil {
			continue
		}
		if paths.IsFollowersPath(u) {
			members, err := ar.collections.Members(c, u, ar.pageSize)
			if err != nil {
				util.ErrorLogger.Errorf("audience resolver failed to expand followers %s: %s", iri, err)
				continue
			}
			for _, m := range members {
				expanded[m] = true
			}
			continue
		}
		expanded[iri] = true
	}

	senderURL, err := url.Parse(senderIRI)
	if err != nil {
		return nil, wrapError(InvalidActivity, "sender iri does not parse", err)
	}

	seenInbox := make(map[string]bool, len(expanded))
	var out []Recipient
	for iri := range expanded {
		if iri == senderIRI {
			continue
		}
		blocked, err := ar.isBlocked(c, senderURL, iri)
		if err != nil {
			util.ErrorLogger.Errorf("audience resolver failed block check for %s: %s", iri, err)
			continue
		}
		if blocked {
			continue
		}
		ra, err := ar.actors.Resolve(c, iri, t)
		if err != nil {
			util.ErrorLogger.Errorf("audience resolver failed to resolve actor %s: %s", iri, err)
			continue
		}
		if ra.Gone {
			continue
		}
		inbox := ra.InboxFor()
		if len(inbox) == 0 || seenInbox[inbox] {
			continue
		}
		seenInbox[inbox] = true
		out = append(out, Recipient{ActorIRI: iri, Inbox: inbox})
	}
	return out, nil
}

func (ar *AudienceResolver) unionFields(act util.Activity) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range audienceFields {
		for _, iri := range StringList(act, f) {
			if !seen[iri] {
				seen[iri] = true
				out = append(out, iri)
			}
		}
	}
	return out
}

// isBlocked probes the sender's federated-block policies with a minimal
// synthetic activity carrying the candidate recipient as its actor, reusing
// the same matcher engine the Block handler populates (common case: a
// single "actor.0 equals <blocked iri>" matcher).
func (ar *AudienceResolver) isBlocked(c util.Context, senderID *url.URL, candidateIRI string) (bool, error) {
	probe := util.Activity{
		"id":    candidateIRI,
		"actor": []interface{}{candidateIRI},
	}
	return ar.policies.IsBlocked(c, senderID, probe)
}

// StripPrivateFields removes bto/bcc and any local-only metadata before an
// activity is handed to the Delivery Engine, per the requirement that these
// fields are visible only for local processing.
func StripPrivateFields(act util.Activity) util.Activity {
	out := make(util.Activity, len(act))
	for k, v := range act {
		if k == "bto" || k == "bcc" || k == "_meta" || k == "_local" {
			continue
		}
		out[k] = v
	}
	return out
}
