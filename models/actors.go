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

	"github.com/outpostfed/apcore/util"
)

var _ Model = &Actors{}

// Actors is a Model for the local actor registry: the IRI-addressable
// actor records this instance hosts. Remote actors are not stored here;
// ap.ActorResolver caches them in memory.
type Actors struct {
	create        *sql.Stmt
	getByIRI      *sql.Stmt
	getByUsername *sql.Stmt
}

const createActorsTable = `
CREATE TABLE IF NOT EXISTS local_actors (
	iri TEXT PRIMARY KEY,
	preferred_username TEXT NOT NULL UNIQUE,
	inbox TEXT NOT NULL,
	outbox TEXT NOT NULL,
	followers TEXT NOT NULL,
	following TEXT NOT NULL,
	liked TEXT NOT NULL,
	public_key_pem TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const (
	createActorSql        = `INSERT INTO local_actors (iri, preferred_username, inbox, outbox, followers, following, liked, public_key_pem) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	getActorByIRISql      = `SELECT iri, preferred_username, inbox, outbox, followers, following, liked, public_key_pem FROM local_actors WHERE iri = $1`
	getActorByUsernameSql = `SELECT iri, preferred_username, inbox, outbox, followers, following, liked, public_key_pem FROM local_actors WHERE preferred_username = $1`
)

func (a *Actors) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db,
		stmtPairs{
			{&(a.create), createActorSql},
			{&(a.getByIRI), getActorByIRISql},
			{&(a.getByUsername), getActorByUsernameSql},
		})
}

func (a *Actors) CreateTable(t *sql.Tx) error {
	_, err := t.Exec(createActorsTable)
	return err
}

func (a *Actors) Close() {
	a.create.Close()
	a.getByIRI.Close()
	a.getByUsername.Close()
}

// LocalActor is the registry row for one locally-hosted actor.
type LocalActor struct {
	IRI               string
	PreferredUsername string
	Inbox             string
	Outbox            string
	Followers         string
	Following         string
	Liked             string
	PublicKeyPEM      string
}

func (a *Actors) Create(c util.Context, tx *sql.Tx, la LocalActor) error {
	_, err := tx.Stmt(a.create).ExecContext(c,
		la.IRI,
		la.PreferredUsername,
		la.Inbox,
		la.Outbox,
		la.Followers,
		la.Following,
		la.Liked,
		la.PublicKeyPEM)
	return err
}

func (a *Actors) GetByIRI(c util.Context, tx *sql.Tx, iri string) (la LocalActor, err error) {
	rows, err := tx.Stmt(a.getByIRI).QueryContext(c, iri)
	if err != nil {
		return
	}
	defer rows.Close()
	err = enforceOneRow(rows, "Actors.GetByIRI", func(r SingleRow) error {
		return scanLocalActor(r, &la)
	})
	return
}

func (a *Actors) GetByUsername(c util.Context, tx *sql.Tx, username string) (la LocalActor, err error) {
	rows, err := tx.Stmt(a.getByUsername).QueryContext(c, username)
	if err != nil {
		return
	}
	defer rows.Close()
	err = enforceOneRow(rows, "Actors.GetByUsername", func(r SingleRow) error {
		return scanLocalActor(r, &la)
	})
	return
}

func scanLocalActor(r SingleRow, la *LocalActor) error {
	return r.Scan(
		&la.IRI,
		&la.PreferredUsername,
		&la.Inbox,
		&la.Outbox,
		&la.Followers,
		&la.Following,
		&la.Liked,
		&la.PublicKeyPEM)
}
