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
	"fmt"
	"net/url"
	"time"

	"github.com/outpostfed/apcore/util"
)

var _ driver.Valuer = Resolution{}
var _ sql.Scanner = &Resolution{}

// Resolution is the audit trail left behind by evaluating a Policy against
// an activity: whether it matched, and the log of matcher decisions that
// led to the verdict.
type Resolution struct {
	Time time.Time `json:"time,omitempty"`

	// The following are used by Policies
	Matched  bool     `json:"matched,omitempty"`
	MatchLog []string `json:"matchLog,omitempty"`
}

func (r *Resolution) Logf(s string, i ...interface{}) {
	r.Log(fmt.Sprintf(s, i...))
}

func (r *Resolution) Log(s string) {
	r.MatchLog = append(r.MatchLog, s)
}

func (r Resolution) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *Resolution) Scan(src interface{}) error {
	return unmarshal(src, r)
}

type CreateResolution struct {
	PolicyID string
	IRI      *url.URL
	R        Resolution
}

const createResolutionsTable = `
CREATE TABLE IF NOT EXISTS resolutions (
	id SERIAL PRIMARY KEY,
	policy_id TEXT NOT NULL,
	iri TEXT NOT NULL,
	resolution JSONB NOT NULL,
	created TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS resolutions_policy_idx ON resolutions (policy_id);
`

const createResolutionSql = `INSERT INTO resolutions (policy_id, iri, resolution) VALUES ($1, $2, $3)`

var _ Model = &Resolutions{}

// Resolutions is a Model that provides additional database methods for the
// Resolution type.
type Resolutions struct {
	create *sql.Stmt
}

func (r *Resolutions) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db,
		stmtPairs{
			{&(r.create), createResolutionSql},
		})
}

func (r *Resolutions) CreateTable(t *sql.Tx) error {
	_, err := t.Exec(createResolutionsTable)
	return err
}

func (r *Resolutions) Close() {
	r.create.Close()
}

// Create a new Resolution
func (r *Resolutions) Create(c util.Context, tx *sql.Tx, cr CreateResolution) error {
	rows, err := tx.Stmt(r.create).ExecContext(c,
		cr.PolicyID,
		cr.IRI.String(),
		cr.R)
	return mustChangeOneRow(rows, err, "Resolutions.Create")
}
