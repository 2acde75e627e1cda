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

	"github.com/outpostfed/apcore/models"
	"github.com/outpostfed/apcore/util"
)

// Activities is the service-layer facade over the activity store: save,
// fetch, and patch canonical activities inside their own transactions.
type Activities struct {
	DB         *sql.DB
	Activities *models.Activities
}

// Save persists an activity, assigning it a server IRI under baseIRI if it
// doesn't already carry one. Idempotent on id.
func (a *Activities) Save(c util.Context, baseIRI string, act util.Activity) (iri string, err error) {
	err = doInTx(c, a.DB, func(tx *sql.Tx) error {
		iri, err = a.Activities.Save(c, tx, baseIRI, act)
		return err
	})
	return
}

// Get fetches a stored activity by IRI.
func (a *Activities) Get(c util.Context, iri string) (act util.Activity, err error) {
	err = doInTx(c, a.DB, func(tx *sql.Tx) error {
		act, err = a.Activities.Get(c, tx, iri)
		return err
	})
	return
}

// Replace overwrites the stored payload for an activity's IRI wholesale.
func (a *Activities) Replace(c util.Context, iri string, act util.Activity) error {
	return doInTx(c, a.DB, func(tx *sql.Tx) error {
		return a.Activities.Replace(c, tx, iri, act)
	})
}

// Delete removes an activity entirely, used by Undo once the reversed
// activity's collection memberships have been untagged.
func (a *Activities) Delete(c util.Context, iri string) error {
	return doInTx(c, a.DB, func(tx *sql.Tx) error {
		return a.Activities.Delete(c, tx, iri)
	})
}

// UpdateObjectInActivities replaces every embedded copy of an object
// (matched by object[0].id) across every activity that embeds it, used by
// the Update and Delete verb handlers to propagate a changed or
// tombstoned object into previously-delivered activities' stored copies.
func (a *Activities) UpdateObjectInActivities(c util.Context, obj util.Activity) (patched int, err error) {
	objIRI, ok := obj["id"].(string)
	if !ok || len(objIRI) == 0 {
		return
	}
	err = doInTx(c, a.DB, func(tx *sql.Tx) error {
		acts, err := a.Activities.FindByEmbeddedObjectID(c, tx, objIRI)
		if err != nil {
			return err
		}
		for iri, act := range acts {
			act["object"] = []interface{}{map[string]interface{}(obj)}
			if err := a.Activities.Replace(c, tx, iri, act); err != nil {
				return err
			}
			patched++
		}
		return nil
	})
	return
}
