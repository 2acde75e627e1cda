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
	"errors"
	"fmt"
	"net/url"
)

// Model handles managing a single database type's prepared statements and
// table lifecycle against a Postgres connection.
type Model interface {
	Prepare(*sql.DB) error
	CreateTable(*sql.Tx) error
	Close()
}

// stmtPair make a pair of **sql.Stmt and its associated SQL string.
//
// The goal is to populate *stmt based on the associated sqlStr.
type stmtPair struct {
	stmt   **sql.Stmt
	sqlStr string
}

// prepareStmtPair is a mapper that populates the stmtPair.stmt.
func prepareStmtPair(db *sql.DB, s stmtPair) (err error) {
	*s.stmt, err = db.Prepare(s.sqlStr)
	return err
}

// stmtPairs are a list of stmtPair.
type stmtPairs []stmtPair

// prepareStmtPairs turns stmtPairs into a single error, with a side effect of
// populating all stmt.
func prepareStmtPairs(db *sql.DB, s stmtPairs) (err error) {
	doIfNoErr := func(p stmtPair, fn func(*sql.DB, stmtPair) error) error {
		if err == nil {
			return fn(db, p)
		}
		return err
	}
	for _, p := range s {
		err = doIfNoErr(p, prepareStmtPair)
	}
	return
}

// unmarshal attempts to deserialize JSON bytes scanned out of a JSONB column
// into a value.
func unmarshal(maybeByte, v interface{}) error {
	b, ok := maybeByte.([]byte)
	if !ok {
		return errors.New("failed to assert scan to []byte type")
	}
	return json.Unmarshal(b, v)
}

// SingleRow allows *sql.Rows to be treated as *sql.Row so that row-scanning
// closures are agnostic to which one produced them.
type SingleRow interface {
	Scan(dest ...interface{}) error
}

// enforceOneRow ensures that exactly one row is present in the *sql.Rows.
//
// Normally, SQL operations that assume a single row is returned take only
// the first row and discard the rest silently. Discarding silently hides the
// case where application logic and database constraints have diverged, so
// this is treated as an error instead.
func enforceOneRow(r *sql.Rows, debugname string, fn func(r SingleRow) error) error {
	var n int
	for r.Next() {
		if n > 0 {
			return fmt.Errorf("%s: multiple database rows retrieved when enforcing one row", debugname)
		}
		if err := fn(SingleRow(r)); err != nil {
			return err
		}
		n++
	}
	if n == 0 {
		return fmt.Errorf("%s: zero database rows retrieved when enforcing one row", debugname)
	}
	return r.Err()
}

// doForRows iterates over all rows and inspects for any errors.
func doForRows(r *sql.Rows, debugname string, fn func(r SingleRow) error) error {
	for r.Next() {
		if err := fn(SingleRow(r)); err != nil {
			return err
		}
	}
	return r.Err()
}

// mustChangeOneRow ensures an Exec SQL statement changes exactly one row, or
// returns an error.
func mustChangeOneRow(r sql.Result, existing error, name string) error {
	if existing != nil {
		return existing
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("sql query for %s changed %d rows instead of 1 row", name, n)
	}
	return nil
}

var _ driver.Valuer = URL{}
var _ sql.Scanner = &URL{}

// URL handles serializing/deserializing *url.URL types into and out of the
// database as plain text columns.
type URL struct {
	*url.URL
}

func (u URL) Value() (driver.Value, error) {
	if u.URL == nil {
		return nil, nil
	}
	return u.URL.String(), nil
}

func (u *URL) Scan(src interface{}) error {
	s, ok := src.(string)
	if !ok {
		return errors.New("failed to assert scan to string type")
	}
	var err error
	u.URL, err = url.Parse(s)
	return err
}
