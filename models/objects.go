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

package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/outpostfed/apcore/util"
)

var _ driver.Valuer = RawObject{}
var _ sql.Scanner = &RawObject{}

// RawObject is the JSONB-backed canonical representation of a normalized
// object, stored and scanned as a single column.
type RawObject util.Activity

func (r RawObject) Value() (driver.Value, error) {
	return json.Marshal(util.Activity(r))
}

func (r *RawObject) Scan(src interface{}) error {
	var a util.Activity
	if err := unmarshal(src, &a); err != nil {
		return err
	}
	*r = RawObject(a)
	return nil
}

var _ Model = &Objects{}

// Objects is a Model providing CRUD over canonical, normalized objects
// (Notes, Actors, Tombstones, Collections, ...) stored as JSONB documents.
type Objects struct {
	save   *sql.Stmt
	get    *sql.Stmt
	update *sql.Stmt
}

const createObjectsTable = `
CREATE TABLE IF NOT EXISTS objects (
	iri TEXT PRIMARY KEY,
	payload JSONB NOT NULL
);
`

const (
	saveObjectSql   = `INSERT INTO objects (iri, payload) VALUES ($1, $2) ON CONFLICT (iri) DO NOTHING`
	getObjectSql    = `SELECT payload FROM objects WHERE iri = $1`
	updateObjectSql = `UPDATE objects SET payload = $2 WHERE iri = $1`
)

func (o *Objects) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db,
		stmtPairs{
			{&(o.save), saveObjectSql},
			{&(o.get), getObjectSql},
			{&(o.update), updateObjectSql},
		})
}

func (o *Objects) CreateTable(t *sql.Tx) error {
	_, err := t.Exec(createObjectsTable)
	return err
}

func (o *Objects) Close() {
	o.save.Close()
	o.get.Close()
	o.update.Close()
}

// Save persists an object, assigning a server IRI if one is not already
// present under "id".
func (o *Objects) Save(c util.Context, tx *sql.Tx, baseIRI string, obj util.Activity) (iri string, err error) {
	iri, ok := obj["id"].(string)
	if !ok || len(iri) == 0 {
		iri = baseIRI + "/" + uuid.New().String()
		obj["id"] = iri
	}
	_, err = tx.Stmt(o.save).ExecContext(c, iri, RawObject(obj))
	return
}

// Get fetches a stored object by its IRI.
func (o *Objects) Get(c util.Context, tx *sql.Tx, iri string) (obj util.Activity, err error) {
	rows, err := tx.Stmt(o.get).QueryContext(c, iri)
	if err != nil {
		return
	}
	defer rows.Close()
	err = enforceOneRow(rows, "Objects.Get", func(r SingleRow) error {
		var ro RawObject
		if err := r.Scan(&ro); err != nil {
			return err
		}
		obj = util.Activity(ro)
		return nil
	})
	return
}

// Replace overwrites the stored payload for an object's IRI wholesale. The
// caller is responsible for merging partial updates before calling this
// (updateObject merges by id, replacing only the listed fields).
func (o *Objects) Replace(c util.Context, tx *sql.Tx, iri string, obj util.Activity) error {
	r, err := tx.Stmt(o.update).ExecContext(c, iri, RawObject(obj))
	return mustChangeOneRow(r, err, "Objects.Replace")
}
