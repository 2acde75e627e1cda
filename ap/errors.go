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

// Package ap implements the outbox processing pipeline: normalization,
// activity/object storage glue, actor and audience resolution, per-verb
// side effects, collection synthesis, and federated delivery.
package ap

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a closed set of error categories the outbox pipeline can produce,
// each mapping onto exactly one HTTP status.
type Kind int

const (
	// InvalidActivity covers normalization failures and missing required
	// fields on an otherwise well-formed document.
	InvalidActivity Kind = iota
	// UnknownActor covers a local actor lookup miss.
	UnknownActor
	// OwnershipViolation covers Delete/Undo/Add/Remove against a target
	// the sender does not own.
	OwnershipViolation
	// MissingTarget covers Add/Remove without a target and Like without
	// an object.
	MissingTarget
	// UnsupportedMediaType covers a POST whose content type isn't a
	// recognized activity media type; kept as 404 for historical reasons.
	UnsupportedMediaType
	// UpstreamFetchFailure covers a failed remote actor resolution during
	// audience expansion; the affected recipient is skipped, not fatal.
	UpstreamFetchFailure
	// StoreFailure covers any persistence error; the transaction is
	// aborted and the request fails closed.
	StoreFailure
	// DeliveryFailure covers a failed delivery attempt; never surfaced to
	// the HTTP client, only to the retry queue.
	DeliveryFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidActivity:
		return "InvalidActivity"
	case UnknownActor:
		return "UnknownActor"
	case OwnershipViolation:
		return "OwnershipViolation"
	case MissingTarget:
		return "MissingTarget"
	case UnsupportedMediaType:
		return "UnsupportedMediaType"
	case UpstreamFetchFailure:
		return "UpstreamFetchFailure"
	case StoreFailure:
		return "StoreFailure"
	case DeliveryFailure:
		return "DeliveryFailure"
	default:
		return "Unknown"
	}
}

// HTTPStatus maps a Kind onto the status code the HTTP surface returns.
// DeliveryFailure has no HTTP mapping since it never reaches a client.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidActivity:
		return http.StatusBadRequest
	case UnknownActor:
		return http.StatusNotFound
	case OwnershipViolation:
		return http.StatusForbidden
	case MissingTarget:
		return http.StatusBadRequest
	case UnsupportedMediaType:
		return http.StatusNotFound
	case StoreFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed pipeline failure carrying the Kind used to pick an HTTP
// status and the message writeError sends as the response body. The literal
// "Invalid activity" and "'<name>' not found on this instance" bodies are
// written by PostOutbox itself, not taken from Msg.
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

func wrapError(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, err: err}
}

// AsError reports whether err is (or wraps) a pipeline *Error, returning it.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
