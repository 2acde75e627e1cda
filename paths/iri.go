// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
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

package paths

import (
	"fmt"
	"net/url"
	"strings"
)

func Normalize(i *url.URL) *url.URL {
	c := *i
	c.RawQuery = ""
	c.Fragment = ""
	return &c
}

func NormalizeAsIRI(s string) (*url.URL, error) {
	c, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return Normalize(c), nil
}

type PathKey string

const (
	ActorPathKey          PathKey = "actors"
	InboxPathKey                  = "inbox"
	OutboxPathKey                 = "outbox"
	OutboxFirstPathKey            = "outboxFirst"
	OutboxLastPathKey             = "outboxLast"
	FollowersPathKey              = "followers"
	FollowersFirstPathKey         = "followersFirst"
	FollowersLastPathKey          = "followersLast"
	FollowingPathKey              = "following"
	FollowingFirstPathKey         = "followingFirst"
	FollowingLastPathKey          = "followingLast"
	LikedPathKey                  = "liked"
	LikedFirstPathKey             = "likedFirst"
	LikedLastPathKey              = "likedLast"
	BlockedPathKey                = "blocked"
	BlockedFirstPathKey           = "blockedFirst"
	BlockedLastPathKey            = "blockedLast"
	NamedPathKey                  = "collections"
	NamedFirstPathKey              = "collectionsFirst"
	NamedLastPathKey               = "collectionsLast"
	HttpSigPubKeyKey              = "httpsigPubKey"
)

var knownPaths map[PathKey]string = map[PathKey]string{
	ActorPathKey:          "{actor}",
	InboxPathKey:          "{actor}/inbox",
	OutboxPathKey:         "{actor}/outbox",
	OutboxFirstPathKey:    "{actor}/outbox",
	OutboxLastPathKey:     "{actor}/outbox",
	FollowersPathKey:      "{actor}/followers",
	FollowersFirstPathKey: "{actor}/followers",
	FollowersLastPathKey:  "{actor}/followers",
	FollowingPathKey:      "{actor}/following",
	FollowingFirstPathKey: "{actor}/following",
	FollowingLastPathKey:  "{actor}/following",
	LikedPathKey:          "{actor}/liked",
	LikedFirstPathKey:     "{actor}/liked",
	LikedLastPathKey:      "{actor}/liked",
	BlockedPathKey:        "{actor}/blocked",
	BlockedFirstPathKey:   "{actor}/blocked",
	BlockedLastPathKey:    "{actor}/blocked",
	NamedPathKey:          "{actor}/collections/{name}",
	NamedFirstPathKey:     "{actor}/collections/{name}",
	NamedLastPathKey:      "{actor}/collections/{name}",
	HttpSigPubKeyKey:      "{actor}/publicKeys/httpsig",
}

func knownPath(prefix string, k PathKey) string {
	var b strings.Builder
	b.WriteRune('/')
	b.WriteString(prefix)
	b.WriteRune('/')
	b.WriteString(knownPaths[k])
	return b.String()
}

func knownActorPaths(k PathKey) string {
	return knownPath("actors", k)
}

var knownPathQuery map[PathKey]string = map[PathKey]string{
	OutboxFirstPathKey:    fmt.Sprintf("%s=%s", queryCollectionPage, queryTrue),
	OutboxLastPathKey:     fmt.Sprintf("%s=%s&%s=%s", queryCollectionPage, queryTrue, queryCollectionEnd, queryTrue),
	FollowersFirstPathKey: fmt.Sprintf("%s=%s", queryCollectionPage, queryTrue),
	FollowersLastPathKey:  fmt.Sprintf("%s=%s&%s=%s", queryCollectionPage, queryTrue, queryCollectionEnd, queryTrue),
	FollowingFirstPathKey: fmt.Sprintf("%s=%s", queryCollectionPage, queryTrue),
	FollowingLastPathKey:  fmt.Sprintf("%s=%s&%s=%s", queryCollectionPage, queryTrue, queryCollectionEnd, queryTrue),
	LikedFirstPathKey:     fmt.Sprintf("%s=%s", queryCollectionPage, queryTrue),
	LikedLastPathKey:      fmt.Sprintf("%s=%s&%s=%s", queryCollectionPage, queryTrue, queryCollectionEnd, queryTrue),
	BlockedFirstPathKey:   fmt.Sprintf("%s=%s", queryCollectionPage, queryTrue),
	BlockedLastPathKey:    fmt.Sprintf("%s=%s&%s=%s", queryCollectionPage, queryTrue, queryCollectionEnd, queryTrue),
	NamedFirstPathKey:     fmt.Sprintf("%s=%s", queryCollectionPage, queryTrue),
	NamedLastPathKey:      fmt.Sprintf("%s=%s&%s=%s", queryCollectionPage, queryTrue, queryCollectionEnd, queryTrue),
}

type UUID string

// UUIDFromActorPath extracts the actor UUID from a known actor-scoped path,
// e.g. "/actors/<uuid>/outbox" -> "<uuid>".
func UUIDFromActorPath(path string) (UUID, error) {
	s := strings.Split(path, "/")
	if len(s) < 3 {
		return UUID(""), fmt.Errorf("known actor path does not contain uuid: %s", path)
	}
	return UUID(s[2]), nil
}

func UUIDPathFor(k PathKey, uuid UUID) string {
	return strings.ReplaceAll(knownActorPaths(k), "{actor}", string(uuid))
}

// NamedCollectionPathFor builds the path for an application-defined named
// collection owned by an actor (spec's "named collections" extension point).
func NamedCollectionPathFor(k PathKey, uuid UUID, name string) string {
	p := strings.ReplaceAll(knownActorPaths(k), "{actor}", string(uuid))
	return strings.ReplaceAll(p, "{name}", name)
}

func pathQueryFor(k PathKey) string {
	pq, ok := knownPathQuery[k]
	if !ok {
		return ""
	}
	return pq
}

func UUIDIRIFor(scheme string, host string, k PathKey, uuid UUID) *url.URL {
	u := &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     UUIDPathFor(k, uuid),
		RawQuery: pathQueryFor(k),
	}
	return u
}

// NamedCollectionIRIFor builds the IRI for an application-defined named
// collection owned by an actor.
func NamedCollectionIRIFor(scheme, host string, k PathKey, uuid UUID, name string) *url.URL {
	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     NamedCollectionPathFor(k, uuid, name),
		RawQuery: pathQueryFor(k),
	}
}

func uuidFromActorID(actorID *url.URL) (UUID, error) {
	return UUIDFromActorPath(actorID.Path)
}

func IRIForActorID(k PathKey, actorID *url.URL) (*url.URL, error) {
	uuid, err := uuidFromActorID(actorID)
	if err != nil {
		return nil, err
	}
	return &url.URL{
		Scheme:   actorID.Scheme,
		Host:     actorID.Host,
		Path:     strings.ReplaceAll(knownActorPaths(k), "{actor}", string(uuid)),
		RawQuery: pathQueryFor(k),
	}, nil
}

func Route(k PathKey) string {
	return knownActorPaths(k)
}

func IsActorPath(id *url.URL) bool {
	s := strings.Split(id.Path, "/")
	return len(s) == 3 && strings.Contains(id.Path, "actors")
}

func IsFollowersPath(id *url.URL) bool {
	return isSubPath(id, "followers")
}

func IsFollowingPath(id *url.URL) bool {
	return isSubPath(id, "following")
}

func IsLikedPath(id *url.URL) bool {
	return isSubPath(id, "liked")
}

func IsBlockedPath(id *url.URL) bool {
	return isSubPath(id, "blocked")
}

func isSubPath(id *url.URL, sub string) bool {
	s := strings.Split(id.Path, "/")
	return len(s) > 3 &&
		strings.Contains(id.Path, "actors") &&
		strings.Contains(s[3], sub)
}
