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
	"net/url"

	"github.com/outpostfed/apcore/paths"
	"github.com/outpostfed/apcore/util"
)

// Page is one page of a collection's membership: the item IRIs (newest-first
// for the first and cursor pages, oldest-first for the last page) plus the
// opaque cursor to pass back in to fetch the next page.
type Page struct {
	Items      []string
	NextCursor string
	HasNext    bool
}

// FirstPageFn fetches the first (most recent) page of a collection.
type FirstPageFn func(c util.Context, collectionIRI *url.URL, n int) (Page, error)

// AnyPageFn fetches an arbitrary page of a collection given an opaque
// cursor, continuing from wherever that cursor left off.
type AnyPageFn func(c util.Context, collectionIRI *url.URL, cursor string, n int) (Page, error)

// LastPageFn fetches the oldest page of a collection.
type LastPageFn func(c util.Context, collectionIRI *url.URL, n int) (Page, error)

// DoCollectionPagination examines the query parameters of an IRI and uses
// them to fetch either the first page, the last page, or the page
// continuing from an opaque cursor, matching spec semantics where
// pagination always proceeds via an insertion-key cursor rather than an
// offset.
func DoCollectionPagination(c util.Context, iri *url.URL, defaultSize, maxSize int, first FirstPageFn, any AnyPageFn, last LastPageFn) (p Page, err error) {
	n := paths.GetNumOrDefault(iri, defaultSize, maxSize)
	normalized := paths.Normalize(iri)
	if !paths.IsGetCollectionPage(iri) {
		// Any page value other than "true" is an opaque cursor, the form
		// a CollectionPage's next link carries.
		if cursor := iri.Query().Get("page"); len(cursor) > 0 {
			return any(c, normalized, cursor, n)
		}
		return first(c, normalized, n)
	}
	if paths.IsGetCollectionEnd(iri) {
		return last(c, normalized, n)
	}
	if cursor := paths.GetCursor(iri); len(cursor) > 0 {
		return any(c, normalized, cursor, n)
	}
	return first(c, normalized, n)
}
