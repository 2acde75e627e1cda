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

var _ Model = &PrivateKeys{}

const createPrivateKeysTable = `
CREATE TABLE IF NOT EXISTS private_keys (
	id SERIAL PRIMARY KEY,
	actor_iri TEXT NOT NULL,
	purpose TEXT NOT NULL,
	priv_key BYTEA NOT NULL,
	UNIQUE (actor_iri, purpose)
);
`

const (
	createPrivateKeySql  = `INSERT INTO private_keys (actor_iri, purpose, priv_key) VALUES ($1, $2, $3)`
	getByActorIRISql     = `SELECT priv_key FROM private_keys WHERE actor_iri = $1 AND purpose = $2`
)

// PrivateKeys is a Model that provides additional database methods for the
// PrivateKey type. Every local actor owns exactly one key per purpose (the
// purpose distinguishes, for example, the key used to sign outbound
// deliveries from any future additional keys an actor might hold).
type PrivateKeys struct {
	createPrivateKey *sql.Stmt
	getByActorIRI    *sql.Stmt
}

func (p *PrivateKeys) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db,
		stmtPairs{
			{&(p.createPrivateKey), createPrivateKeySql},
			{&(p.getByActorIRI), getByActorIRISql},
		})
}

func (p *PrivateKeys) CreateTable(t *sql.Tx) error {
	_, err := t.Exec(createPrivateKeysTable)
	return err
}

func (p *PrivateKeys) Close() {
	p.createPrivateKey.Close()
	p.getByActorIRI.Close()
}

// Create a new private key entry in the database.
func (p *PrivateKeys) Create(c util.Context, tx *sql.Tx, actorIRI, purpose string, privKey []byte) error {
	r, err := tx.Stmt(p.createPrivateKey).ExecContext(c, actorIRI, purpose, privKey)
	return mustChangeOneRow(r, err, "PrivateKeys.Create")
}

// GetByActorIRI fetches a private key by the owning actor's IRI and purpose.
func (p *PrivateKeys) GetByActorIRI(c util.Context, tx *sql.Tx, actorIRI, purpose string) (b []byte, err error) {
	var rows *sql.Rows
	rows, err = tx.Stmt(p.getByActorIRI).QueryContext(c, actorIRI, purpose)
	if err != nil {
		return
	}
	defer rows.Close()
	return b, enforceOneRow(rows, "PrivateKeys.GetByActorIRI", func(r SingleRow) error {
		return r.Scan(&(b))
	})
}
