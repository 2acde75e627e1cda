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
	"net/url"
	"strconv"

	"github.com/outpostfed/apcore/models"
	"github.com/outpostfed/apcore/util"
)

// Collections is the service-layer facade over the collection_membership
// index backing every actor-scoped collection: outbox, followers,
// following, liked, blocked, and per-actor named collections.
type Collections struct {
	DB          *sql.DB
	Collections *models.Collections
}

// Insert tags an activity as a member of a collection.
func (s *Collections) Insert(c util.Context, collectionIRI, activityIRI *url.URL) error {
	return doInTx(c, s.DB, func(tx *sql.Tx) error {
		return s.Collections.InsertIntoCollection(c, tx, collectionIRI.String(), activityIRI.String())
	})
}

// Remove untags an activity from a collection.
func (s *Collections) Remove(c util.Context, collectionIRI, activityIRI *url.URL) error {
	return doInTx(c, s.DB, func(tx *sql.Tx) error {
		return s.Collections.RemoveFromCollection(c, tx, collectionIRI.String(), activityIRI.String())
	})
}

// IsMember reports whether an activity is tagged with a collection.
func (s *Collections) IsMember(c util.Context, collectionIRI, activityIRI *url.URL) (ok bool, err error) {
	err = doInTx(c, s.DB, func(tx *sql.Tx) error {
		ok, err = s.Collections.IsMember(c, tx, collectionIRI.String(), activityIRI.String())
		return err
	})
	return
}

// CollectionsContaining returns every collection IRI an activity is
// currently tagged into, used by Undo to find which collections to untag
// the reversed activity from.
func (s *Collections) CollectionsContaining(c util.Context, activityIRI *url.URL) (iris []string, err error) {
	err = doInTx(c, s.DB, func(tx *sql.Tx) error {
		iris, err = s.Collections.CollectionsContaining(c, tx, activityIRI.String())
		return err
	})
	return
}

// TotalItems returns the OrderedCollection.totalItems summary count.
func (s *Collections) TotalItems(c util.Context, collectionIRI *url.URL) (n int, err error) {
	err = doInTx(c, s.DB, func(tx *sql.Tx) error {
		n, err = s.Collections.Count(c, tx, collectionIRI.String())
		return err
	})
	return
}

// FirstPage implements FirstPageFn for a collection IRI.
func (s *Collections) FirstPage(c util.Context, collectionIRI *url.URL, n int) (p Page, err error) {
	var items []models.MembershipItem
	err = doInTx(c, s.DB, func(tx *sql.Tx) error {
		items, err = s.Collections.FirstPage(c, tx, collectionIRI.String(), n+1)
		return err
	})
	if err != nil {
		return
	}
	return toPage(items, n), nil
}

// AnyPage implements AnyPageFn for a collection IRI, continuing strictly
// after the member identified by the opaque cursor.
func (s *Collections) AnyPage(c util.Context, collectionIRI *url.URL, cursor string, n int) (p Page, err error) {
	id, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		err = fmt.Errorf("invalid collection page cursor: %w", err)
		return
	}
	var items []models.MembershipItem
	err = doInTx(c, s.DB, func(tx *sql.Tx) error {
		items, err = s.Collections.NextPage(c, tx, collectionIRI.String(), id, n+1)
		return err
	})
	if err != nil {
		return
	}
	return toPage(items, n), nil
}

// LastPage implements LastPageFn for a collection IRI.
func (s *Collections) LastPage(c util.Context, collectionIRI *url.URL, n int) (p Page, err error) {
	var items []models.MembershipItem
	err = doInTx(c, s.DB, func(tx *sql.Tx) error {
		items, err = s.Collections.LastPage(c, tx, collectionIRI.String(), n+1)
		return err
	})
	if err != nil {
		return
	}
	return toPage(items, n), nil
}

// toPage converts up to n+1 fetched membership rows into a Page, using the
// (n+1)th row only to detect whether a further page exists.
func toPage(items []models.MembershipItem, n int) Page {
	hasNext := len(items) > n
	if hasNext {
		items = items[:n]
	}
	p := Page{HasNext: hasNext}
	for _, it := range items {
		p.Items = append(p.Items, it.IRI)
	}
	if len(items) > 0 {
		p.NextCursor = strconv.FormatInt(items[len(items)-1].ID, 10)
	}
	return p
}
