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

var _ Model = &Collections{}

// Collections is a Model backing the `_meta.collection` index: a single
// join table recording which collection IRIs an activity belongs to, with
// a serial insertion key used as the opaque pagination cursor. This one
// table is the store of record for the outbox, followers, following,
// liked, blocked, and every per-actor named collection.
type Collections struct {
	insert     *sql.Stmt
	remove     *sql.Stmt
	count      *sql.Stmt
	firstPage  *sql.Stmt
	nextPage   *sql.Stmt
	lastPage   *sql.Stmt
	isMember   *sql.Stmt
	containing *sql.Stmt
}

const createCollectionsTable = `
CREATE TABLE IF NOT EXISTS collection_membership (
	id BIGSERIAL PRIMARY KEY,
	collection_iri TEXT NOT NULL,
	activity_iri TEXT NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(collection_iri, activity_iri)
);
CREATE INDEX IF NOT EXISTS collection_membership_iri_idx ON collection_membership (collection_iri, id DESC);
`

const (
	insertIntoCollectionSql = `INSERT INTO collection_membership (collection_iri, activity_iri) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	removeFromCollectionSql = `DELETE FROM collection_membership WHERE collection_iri = $1 AND activity_iri = $2`
	countCollectionSql      = `SELECT COUNT(*) FROM collection_membership WHERE collection_iri = $1`
	firstPageSql            = `SELECT id, activity_iri FROM collection_membership WHERE collection_iri = $1 ORDER BY id DESC LIMIT $2`
	nextPageSql             = `SELECT id, activity_iri FROM collection_membership WHERE collection_iri = $1 AND id < $2 ORDER BY id DESC LIMIT $3`
	lastPageSql             = `SELECT id, activity_iri FROM collection_membership WHERE collection_iri = $1 ORDER BY id ASC LIMIT $2`
	isMemberSql             = `SELECT 1 FROM collection_membership WHERE collection_iri = $1 AND activity_iri = $2`
	containingSql           = `SELECT collection_iri FROM collection_membership WHERE activity_iri = $1`
)

func (c *Collections) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db,
		stmtPairs{
			{&(c.insert), insertIntoCollectionSql},
			{&(c.remove), removeFromCollectionSql},
			{&(c.count), countCollectionSql},
			{&(c.firstPage), firstPageSql},
			{&(c.nextPage), nextPageSql},
			{&(c.lastPage), lastPageSql},
			{&(c.isMember), isMemberSql},
			{&(c.containing), containingSql},
		})
}

func (c *Collections) CreateTable(t *sql.Tx) error {
	_, err := t.Exec(createCollectionsTable)
	return err
}

func (c *Collections) Close() {
	c.insert.Close()
	c.remove.Close()
	c.count.Close()
	c.firstPage.Close()
	c.nextPage.Close()
	c.lastPage.Close()
	c.isMember.Close()
	c.containing.Close()
}

// InsertIntoCollection tags an activity as belonging to a collection.
func (c *Collections) InsertIntoCollection(ctx util.Context, tx *sql.Tx, collectionIRI, activityIRI string) error {
	_, err := tx.Stmt(c.insert).ExecContext(ctx, collectionIRI, activityIRI)
	return err
}

// RemoveFromCollection untags an activity from a collection.
func (c *Collections) RemoveFromCollection(ctx util.Context, tx *sql.Tx, collectionIRI, activityIRI string) error {
	_, err := tx.Stmt(c.remove).ExecContext(ctx, collectionIRI, activityIRI)
	return err
}

// IsMember reports whether an activity is currently tagged with a
// collection.
func (c *Collections) IsMember(ctx util.Context, tx *sql.Tx, collectionIRI, activityIRI string) (ok bool, err error) {
	rows, err := tx.Stmt(c.isMember).QueryContext(ctx, collectionIRI, activityIRI)
	if err != nil {
		return
	}
	defer rows.Close()
	ok = rows.Next()
	err = rows.Err()
	return
}

// Count returns the total number of activities tagged with a collection,
// used for OrderedCollection.totalItems summaries.
func (c *Collections) Count(ctx util.Context, tx *sql.Tx, collectionIRI string) (n int, err error) {
	rows, err := tx.Stmt(c.count).QueryContext(ctx, collectionIRI)
	if err != nil {
		return
	}
	defer rows.Close()
	err = enforceOneRow(rows, "Collections.Count", func(r SingleRow) error {
		return r.Scan(&n)
	})
	return
}

// MembershipItem is one row of a collection page: the member activity's
// IRI plus the serial insertion key used as its opaque cursor.
type MembershipItem struct {
	ID  int64
	IRI string
}

// FirstPage returns the newest n members of a collection.
func (c *Collections) FirstPage(ctx util.Context, tx *sql.Tx, collectionIRI string, n int) ([]MembershipItem, error) {
	return c.page(ctx, tx.Stmt(c.firstPage), collectionIRI, n)
}

// NextPage returns the n members of a collection immediately older than
// the given cursor (a previously returned MembershipItem.ID).
func (c *Collections) NextPage(ctx util.Context, tx *sql.Tx, collectionIRI string, cursor int64, n int) ([]MembershipItem, error) {
	rows, err := tx.Stmt(c.nextPage).QueryContext(ctx, collectionIRI, cursor, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembershipItems(rows)
}

// LastPage returns the oldest n members of a collection.
func (c *Collections) LastPage(ctx util.Context, tx *sql.Tx, collectionIRI string, n int) ([]MembershipItem, error) {
	return c.page(ctx, tx.Stmt(c.lastPage), collectionIRI, n)
}

func (c *Collections) page(ctx util.Context, stmt *sql.Stmt, collectionIRI string, n int) ([]MembershipItem, error) {
	rows, err := stmt.QueryContext(ctx, collectionIRI, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembershipItems(rows)
}

func scanMembershipItems(rows *sql.Rows) (items []MembershipItem, err error) {
	err = doForRows(rows, "Collections page", func(r SingleRow) error {
		var m MembershipItem
		if err := r.Scan(&m.ID, &m.IRI); err != nil {
			return err
		}
		items = append(items, m)
		return nil
	})
	return
}

// CollectionsContaining returns every collection IRI an activity is
// currently tagged into, used by Undo to find which collections to untag
// the reversed activity from.
func (c *Collections) CollectionsContaining(ctx util.Context, tx *sql.Tx, activityIRI string) (iris []string, err error) {
	rows, err := tx.Stmt(c.containing).QueryContext(ctx, activityIRI)
	if err != nil {
		return
	}
	defer rows.Close()
	err = doForRows(rows, "Collections.CollectionsContaining", func(r SingleRow) error {
		var iri string
		if err := r.Scan(&iri); err != nil {
			return err
		}
		iris = append(iris, iri)
		return nil
	})
	return
}
