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

package services

import (
	"database/sql"
	"fmt"

	"github.com/outpostfed/apcore/models"
	"github.com/outpostfed/apcore/paths"
	"github.com/outpostfed/apcore/util"
)

// Actors is the service-layer facade over the local actor registry plus
// the key material each registered actor needs to sign outbound requests.
type Actors struct {
	DB          *sql.DB
	Actors      *models.Actors
	PrivateKeys *PrivateKeys
}

// Create registers a new local actor: generates its RSA keypair, persists
// the private half, and writes the actor registry row with the IRIs of
// its inbox/outbox/followers/following/liked collections.
func (a *Actors) Create(c util.Context, scheme, host, username string) (la models.LocalActor, err error) {
	uuid := paths.UUID(username)
	iri := paths.UUIDIRIFor(scheme, host, paths.ActorPathKey, uuid)
	var pubPEM string
	pubPEM, err = a.PrivateKeys.CreateActorKey(c, iri.String())
	if err != nil {
		return
	}
	la = models.LocalActor{
		IRI:               iri.String(),
		PreferredUsername: username,
		Inbox:             paths.UUIDIRIFor(scheme, host, paths.InboxPathKey, uuid).String(),
		Outbox:            paths.UUIDIRIFor(scheme, host, paths.OutboxPathKey, uuid).String(),
		Followers:         paths.UUIDIRIFor(scheme, host, paths.FollowersPathKey, uuid).String(),
		Following:         paths.UUIDIRIFor(scheme, host, paths.FollowingPathKey, uuid).String(),
		Liked:             paths.UUIDIRIFor(scheme, host, paths.LikedPathKey, uuid).String(),
		PublicKeyPEM:      pubPEM,
	}
	err = doInTx(c, a.DB, func(tx *sql.Tx) error {
		return a.Actors.Create(c, tx, la)
	})
	return
}

// GetByIRI looks up a local actor by its full IRI.
func (a *Actors) GetByIRI(c util.Context, iri string) (la models.LocalActor, err error) {
	err = doInTx(c, a.DB, func(tx *sql.Tx) error {
		la, err = a.Actors.GetByIRI(c, tx, iri)
		return err
	})
	return
}

// GetByUsername looks up a local actor by its preferred username, the
// form the outbox route's :actor path variable carries.
func (a *Actors) GetByUsername(c util.Context, username string) (la models.LocalActor, err error) {
	err = doInTx(c, a.DB, func(tx *sql.Tx) error {
		la, err = a.Actors.GetByUsername(c, tx, username)
		return err
	})
	if err != nil {
		err = fmt.Errorf("%q not found on this instance: %w", username, err)
	}
	return
}

// LocalActorAsActivity renders a local actor's registry row into its
// canonical, normalized representation, as it is exposed at its own IRI
// and embedded by the Actor Resolver.
func LocalActorAsActivity(la models.LocalActor, actorType string) util.Activity {
	return util.Activity{
		"id":                la.IRI,
		"type":              []interface{}{actorType},
		"preferredUsername": []interface{}{la.PreferredUsername},
		"inbox":             []interface{}{la.Inbox},
		"outbox":            []interface{}{la.Outbox},
		"followers":         []interface{}{la.Followers},
		"following":         []interface{}{la.Following},
		"liked":             []interface{}{la.Liked},
		"publicKey": []interface{}{map[string]interface{}{
			"id":           la.IRI + "#main-key",
			"owner":        la.IRI,
			"publicKeyPem": la.PublicKeyPEM,
		}},
	}
}
