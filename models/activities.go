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

var _ driver.Valuer = RawActivity{}
var _ sql.Scanner = &RawActivity{}

// RawActivity is the JSONB-backed canonical representation of a normalized
// activity, stored and scanned as a single column.
type RawActivity util.Activity

func (r RawActivity) Value() (driver.Value, error) {
	return json.Marshal(util.Activity(r))
}

func (r *RawActivity) Scan(src interface{}) error {
	var a util.Activity
	if err := unmarshal(src, &a); err != nil {
		return err
	}
	*r = RawActivity(a)
	return nil
}

var _ Model = &Activities{}

// Activities is a Model providing CRUD over canonical, normalized
// activities stored as JSONB documents.
type Activities struct {
	save           *sql.Stmt
	get            *sql.Stmt
	replace        *sql.Stmt
	del            *sql.Stmt
	findByEmbedded *sql.Stmt
}

const createActivitiesTable = `
CREATE TABLE IF NOT EXISTS activities (
	iri TEXT PRIMARY KEY,
	payload JSONB NOT NULL
);
`

const (
	saveActivitySql           = `INSERT INTO activities (iri, payload) VALUES ($1, $2) ON CONFLICT (iri) DO NOTHING`
	getActivitySql            = `SELECT payload FROM activities WHERE iri = $1`
	replaceActivitySql        = `UPDATE activities SET payload = $2 WHERE iri = $1`
	deleteActivitySql         = `DELETE FROM activities WHERE iri = $1`
	findByEmbeddedObjectIDSql = `SELECT iri, payload FROM activities WHERE payload->'object'->0->>'id' = $1`
)

func (a *Activities) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db,
		stmtPairs{
			{&(a.save), saveActivitySql},
			{&(a.get), getActivitySql},
			{&(a.replace), replaceActivitySql},
			{&(a.del), deleteActivitySql},
			{&(a.findByEmbedded), findByEmbeddedObjectIDSql},
		})
}

func (a *Activities) CreateTable(t *sql.Tx) error {
	_, err := t.Exec(createActivitiesTable)
	return err
}

func (a *Activities) Close() {
	a.save.Close()
	a.get.Close()
	a.replace.Close()
	a.del.Close()
	a.findByEmbedded.Close()
}

// Save persists an activity, assigning a server IRI if one is not already
// set under "id". The store is idempotent on IRI: a second save of the
// same IRI is a silent no-op.
func (a *Activities) Save(c util.Context, tx *sql.Tx, baseIRI string, act util.Activity) (iri string, err error) {
	iri, ok := act["id"].(string)
	if !ok || len(iri) == 0 {
		iri = baseIRI + "/" + uuid.New().String()
		act["id"] = iri
	}
	_, err = tx.Stmt(a.save).ExecContext(c, iri, RawActivity(act))
	return
}

// Get fetches a stored activity by its IRI.
func (a *Activities) Get(c util.Context, tx *sql.Tx, iri string) (act util.Activity, err error) {
	rows, err := tx.Stmt(a.get).QueryContext(c, iri)
	if err != nil {
		return
	}
	defer rows.Close()
	err = enforceOneRow(rows, "Activities.Get", func(r SingleRow) error {
		var ra RawActivity
		if err := r.Scan(&ra); err != nil {
			return err
		}
		act = util.Activity(ra)
		return nil
	})
	return
}

// Replace overwrites the stored payload for an activity's IRI wholesale,
// used to patch embedded object copies (Update) or to tombstone embedded
// objects (Delete).
func (a *Activities) Replace(c util.Context, tx *sql.Tx, iri string, act util.Activity) error {
	r, err := tx.Stmt(a.replace).ExecContext(c, iri, RawActivity(act))
	return mustChangeOneRow(r, err, "Activities.Replace")
}

// Delete removes an activity, used by Undo to erase the activity it
// reverses once its side effect has been undone.
func (a *Activities) Delete(c util.Context, tx *sql.Tx, iri string) error {
	r, err := tx.Stmt(a.del).ExecContext(c, iri)
	return mustChangeOneRow(r, err, "Activities.Delete")
}

// FindByEmbeddedObjectID returns every activity whose object[0].id matches
// the given object IRI, used by updateObjectInActivities to patch every
// embedded copy of an updated or tombstoned object.
func (a *Activities) FindByEmbeddedObjectID(c util.Context, tx *sql.Tx, objectIRI string) (acts map[string]util.Activity, err error) {
	rows, err := tx.Stmt(a.findByEmbedded).QueryContext(c, objectIRI)
	if err != nil {
		return
	}
	defer rows.Close()
	acts = make(map[string]util.Activity)
	err = doForRows(rows, "Activities.FindByEmbeddedObjectID", func(r SingleRow) error {
		var iri string
		var ra RawActivity
		if err := r.Scan(&iri, &ra); err != nil {
			return err
		}
		acts[iri] = util.Activity(ra)
		return nil
	})
	return
}
