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
	"github.com/outpostfed/apcore/util"
)

// Objects is the service-layer facade over the object store.
type Objects struct {
	DB      *sql.DB
	Objects *models.Objects
}

// Save persists an object, assigning it a server IRI under baseIRI if it
// doesn't already carry one.
func (o *Objects) Save(c util.Context, baseIRI string, obj util.Activity) (iri string, err error) {
	err = doInTx(c, o.DB, func(tx *sql.Tx) error {
		iri, err = o.Objects.Save(c, tx, baseIRI, obj)
		return err
	})
	return
}

// Get fetches a stored object by IRI.
func (o *Objects) Get(c util.Context, iri string) (obj util.Activity, err error) {
	err = doInTx(c, o.DB, func(tx *sql.Tx) error {
		obj, err = o.Objects.Get(c, tx, iri)
		return err
	})
	return
}

// Update merges a partial object into the stored record by id, replacing
// only the properties present in partial and leaving the rest untouched.
func (o *Objects) Update(c util.Context, iri string, partial util.Activity) (merged util.Activity, err error) {
	err = doInTx(c, o.DB, func(tx *sql.Tx) error {
		existing, err := o.Objects.Get(c, tx, iri)
		if err != nil {
			return err
		}
		for k, v := range partial {
			if k == "id" {
				continue
			}
			existing[k] = v
		}
		merged = existing
		return o.Objects.Replace(c, tx, iri, merged)
	})
	return
}

// Tombstone replaces the stored object with a Tombstone preserving only
// id, type, deleted, updated, and published.
func (o *Objects) Tombstone(c util.Context, iri string, deletedAt, updatedAt, published interface{}) (tomb util.Activity, err error) {
	tomb = util.Activity{
		"id":        iri,
		"type":      "Tombstone",
		"deleted":   deletedAt,
		"updated":   updatedAt,
		"published": published,
	}
	err = doInTx(c, o.DB, func(tx *sql.Tx) error {
		return o.Objects.Replace(c, tx, iri, tomb)
	})
	return
}

// AttributedTo returns the single actor IRI an object is attributed to, or
// an error if the object carries none (used to enforce Delete ownership).
func AttributedTo(obj util.Activity) (string, error) {
	v, ok := obj["attributedTo"]
	if !ok {
		return "", fmt.Errorf("object has no attributedTo")
	}
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return "", fmt.Errorf("object has no attributedTo")
	}
	s, ok := list[0].(string)
	if !ok || len(s) == 0 {
		return "", fmt.Errorf("object attributedTo is not a string IRI")
	}
	return s, nil
}
