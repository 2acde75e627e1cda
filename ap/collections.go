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

package ap

import (
	"net/url"

	"github.com/outpostfed/apcore/services"
	"github.com/outpostfed/apcore/util"
)

// CollectionSummary is the OrderedCollection view: id, type, totalItems,
// and the IRI of the first page.
type CollectionSummary struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	TotalItems int    `json:"totalItems"`
	First      string `json:"first,omitempty"`
}

// CollectionPage is the OrderedCollectionPage view: the page's own items in
// newest-first order (oldest-first when the last page is requested) plus the
// absolute next-page URL, when one exists.
type CollectionPage struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	PartOf        string   `json:"partOf"`
	OrderedItems  []string `json:"orderedItems"`
	Next          string   `json:"next,omitempty"`
}

// Collections is the service-layer facade C7 wraps: collection membership
// plus the summary/page rendering the HTTP surface and Audience Resolver
// need.
type Collections struct {
	svc *services.Collections
}

// NewCollections builds a Collections facade over the membership store.
func NewCollections(svc *services.Collections) *Collections {
	return &Collections{svc: svc}
}

// Summary builds the OrderedCollection view of a collection.
func (c *Collections) Summary(ctx util.Context, collectionIRI *url.URL) (CollectionSummary, error) {
	n, err := c.svc.TotalItems(ctx, collectionIRI)
	if err != nil {
		return CollectionSummary{}, wrapError(StoreFailure, "failed to count collection", err)
	}
	first := *collectionIRI
	first.RawQuery = "page=true"
	return CollectionSummary{
		ID:         collectionIRI.String(),
		Type:       "OrderedCollection",
		TotalItems: n,
		First:      first.String(),
	}, nil
}

// Page resolves one page of a collection per the request IRI's pagination
// query parameters, per services.DoCollectionPagination.
func (c *Collections) Page(ctx util.Context, requestIRI *url.URL, defaultSize, maxSize int) (CollectionPage, error) {
	p, err := services.DoCollectionPagination(ctx, requestIRI, defaultSize, maxSize,
		c.svc.FirstPage, c.svc.AnyPage, c.svc.LastPage)
	if err != nil {
		return CollectionPage{}, wrapError(StoreFailure, "failed to fetch collection page", err)
	}
	partOf := *requestIRI
	partOf.RawQuery = ""
	page := CollectionPage{
		ID:           requestIRI.String(),
		Type:         "OrderedCollectionPage",
		PartOf:       partOf.String(),
		OrderedItems: p.Items,
	}
	if p.HasNext {
		next := partOf
		next.RawQuery = "page=" + p.NextCursor
		page.Next = next.String()
	}
	return page, nil
}

// Members returns every IRI currently tagged into a collection, fetched a
// page at a time; used to expand follower collections during audience
// resolution.
func (c *Collections) Members(ctx util.Context, collectionIRI *url.URL, pageSize int) ([]string, error) {
	var out []string
	page, err := c.svc.FirstPage(ctx, collectionIRI, pageSize)
	if err != nil {
		return nil, wrapError(StoreFailure, "failed to list collection members", err)
	}
	out = append(out, page.Items...)
	for page.HasNext {
		page, err = c.svc.AnyPage(ctx, collectionIRI, page.NextCursor, pageSize)
		if err != nil {
			return nil, wrapError(StoreFailure, "failed to list collection members", err)
		}
		out = append(out, page.Items...)
	}
	return out, nil
}

// CollectionsContaining returns every collection IRI an activity is
// currently tagged into, used by Undo to find which collections to untag
// the reversed activity from.
func (c *Collections) CollectionsContaining(ctx util.Context, activityIRI *url.URL) ([]string, error) {
	iris, err := c.svc.CollectionsContaining(ctx, activityIRI)
	if err != nil {
		return nil, wrapError(StoreFailure, "failed to list collections containing activity", err)
	}
	return iris, nil
}

// Insert tags an activity as a member of a collection.
func (c *Collections) Insert(ctx util.Context, collectionIRI, activityIRI *url.URL) error {
	if err := c.svc.Insert(ctx, collectionIRI, activityIRI); err != nil {
		return wrapError(StoreFailure, "failed to insert into collection", err)
	}
	return nil
}

// Remove untags an activity from a collection.
func (c *Collections) Remove(ctx util.Context, collectionIRI, activityIRI *url.URL) error {
	if err := c.svc.Remove(ctx, collectionIRI, activityIRI); err != nil {
		return wrapError(StoreFailure, "failed to remove from collection", err)
	}
	return nil
}

// IsMember reports whether an activity is currently tagged into a
// collection.
func (c *Collections) IsMember(ctx util.Context, collectionIRI, activityIRI *url.URL) (bool, error) {
	ok, err := c.svc.IsMember(ctx, collectionIRI, activityIRI)
	if err != nil {
		return false, wrapError(StoreFailure, "failed to check collection membership", err)
	}
	return ok, nil
}

// TotalItems is the raw membership count backing a CollectionSummary.
func (c *Collections) TotalItems(ctx util.Context, collectionIRI *url.URL) (int, error) {
	n, err := c.svc.TotalItems(ctx, collectionIRI)
	if err != nil {
		return 0, wrapError(StoreFailure, "failed to count collection", err)
	}
	return n, nil
}

// BuildCollectionUpdate constructs the synthetic Update activity the
// pipeline re-enters C5 with after a followers/liked membership change: its
// object is the fresh collection summary, addressed to the actor's
// followers, per the collection-update synthesis mechanism.
func BuildCollectionUpdate(actorIRI string, summary CollectionSummary) util.Activity {
	return util.Activity{
		"type":   "Update",
		"actor":  []interface{}{actorIRI},
		"object": []interface{}{map[string]interface{}{
			"id":         summary.ID,
			"type":       summary.Type,
			"totalItems": summary.TotalItems,
			"first":      summary.First,
		}},
		"to": []interface{}{actorIRI + "/followers"},
	}
}
