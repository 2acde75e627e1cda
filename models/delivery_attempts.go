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
	"net/url"
	"time"

	"github.com/outpostfed/apcore/util"
)

// These constants are used to mark the simple state of the delivery attempt.
const (
	newDeliveryAttempt       = "new"
	successDeliveryAttempt   = "success"
	failedDeliveryAttempt    = "failed"
	abandonedDeliveryAttempt = "abandoned"
)

var _ Model = &DeliveryAttempts{}

// DeliveryAttempts is a Model that provides additional database methods for
// delivery attempts.
type DeliveryAttempts struct {
	insertDeliveryAttempt         *sql.Stmt
	markDeliveryAttemptSuccessful *sql.Stmt
	markDeliveryAttemptFailed     *sql.Stmt
	markDeliveryAttemptAbandoned  *sql.Stmt
	firstRetryablePage            *sql.Stmt
	nextRetryablePage             *sql.Stmt
}

const createDeliveryAttemptsTable = `
CREATE TABLE IF NOT EXISTS delivery_attempts (
	id SERIAL PRIMARY KEY,
	from_actor TEXT NOT NULL,
	deliver_to TEXT NOT NULL,
	payload BYTEA NOT NULL,
	state TEXT NOT NULL,
	n_attempts INTEGER NOT NULL DEFAULT 0,
	last_attempt TIMESTAMPTZ NOT NULL DEFAULT now(),
	created TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS delivery_attempts_state_idx ON delivery_attempts (state, last_attempt);
`

const (
	insertDeliveryAttemptSql = `INSERT INTO delivery_attempts (from_actor, deliver_to, payload, state) VALUES ($1, $2, $3, $4) RETURNING id`
	markDeliveryAttemptSuccessfulSql = `UPDATE delivery_attempts SET state = $2, last_attempt = now() WHERE id = $1`
	markDeliveryAttemptFailedSql = `UPDATE delivery_attempts SET state = $2, n_attempts = n_attempts + 1, last_attempt = now() WHERE id = $1`
	markDeliveryAttemptAbandonedSql = `UPDATE delivery_attempts SET state = $2, last_attempt = now() WHERE id = $1`
	firstRetryablePageSql = `SELECT id, from_actor, deliver_to, payload, n_attempts, last_attempt FROM delivery_attempts WHERE state = $1 AND last_attempt <= $2 ORDER BY id ASC LIMIT $3`
	nextRetryablePageSql = `SELECT id, from_actor, deliver_to, payload, n_attempts, last_attempt FROM delivery_attempts WHERE state = $1 AND last_attempt <= $2 AND id > $4 ORDER BY id ASC LIMIT $3`
)

func (d *DeliveryAttempts) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db,
		stmtPairs{
			{&(d.insertDeliveryAttempt), insertDeliveryAttemptSql},
			{&(d.markDeliveryAttemptSuccessful), markDeliveryAttemptSuccessfulSql},
			{&(d.markDeliveryAttemptFailed), markDeliveryAttemptFailedSql},
			{&(d.markDeliveryAttemptAbandoned), markDeliveryAttemptAbandonedSql},
			{&(d.firstRetryablePage), firstRetryablePageSql},
			{&(d.nextRetryablePage), nextRetryablePageSql},
		})
}

func (d *DeliveryAttempts) CreateTable(t *sql.Tx) error {
	_, err := t.Exec(createDeliveryAttemptsTable)
	return err
}

func (d *DeliveryAttempts) Close() {
	d.insertDeliveryAttempt.Close()
	d.markDeliveryAttemptSuccessful.Close()
	d.markDeliveryAttemptFailed.Close()
}

// Create a new delivery attempt.
func (d *DeliveryAttempts) Create(c util.Context, tx *sql.Tx, from string, toActor *url.URL, payload []byte) (id string, err error) {
	var rows *sql.Rows
	rows, err = tx.Stmt(d.insertDeliveryAttempt).QueryContext(c,
		from,
		toActor.String(),
		payload,
		newDeliveryAttempt)
	if err != nil {
		return
	}
	defer rows.Close()
	return id, enforceOneRow(rows, "DeliveryAttempts.Create", func(r SingleRow) error {
		return r.Scan(&(id))
	})
}

// MarkSuccessful marks a delivery attempt as successful.
func (d *DeliveryAttempts) MarkSuccessful(c util.Context, tx *sql.Tx, id string) error {
	r, err := tx.Stmt(d.markDeliveryAttemptSuccessful).ExecContext(c,
		id,
		successDeliveryAttempt)
	return mustChangeOneRow(r, err, "DeliveryAttempts.MarkSuccessful")
}

// MarkFailed marks a delivery attempt as failed.
func (d *DeliveryAttempts) MarkFailed(c util.Context, tx *sql.Tx, id string) error {
	r, err := tx.Stmt(d.markDeliveryAttemptFailed).ExecContext(c,
		id,
		failedDeliveryAttempt)
	return mustChangeOneRow(r, err, "DeliveryAttempts.MarkFailed")
}

// MarkAbandoned marks a delivery attempt as abandoned.
func (d *DeliveryAttempts) MarkAbandoned(c util.Context, tx *sql.Tx, id string) error {
	r, err := tx.Stmt(d.markDeliveryAttemptAbandoned).ExecContext(c,
		id,
		abandonedDeliveryAttempt)
	return mustChangeOneRow(r, err, "DeliveryAttempts.Abandoned")
}

type RetryableFailure struct {
	ID          string
	FromActor   string
	DeliverTo   URL
	Payload     []byte
	NAttempts   int
	LastAttempt time.Time
}

// FirstPageFailures obtains the first page of retryable failures.
func (d *DeliveryAttempts) FirstPageFailures(c util.Context, tx *sql.Tx, fetchTime time.Time, n int) (rf []RetryableFailure, err error) {
	var rows *sql.Rows
	rows, err = tx.Stmt(d.firstRetryablePage).QueryContext(c, failedDeliveryAttempt, fetchTime, n)
	if err != nil {
		return
	}
	defer rows.Close()
	return rf, doForRows(rows, "DeliveryAttempts.FirstPageFailures", func(r SingleRow) error {
		var rt RetryableFailure
		if err := r.Scan(&(rt.ID), &(rt.FromActor), &(rt.DeliverTo), &(rt.Payload), &(rt.NAttempts), &(rt.LastAttempt)); err != nil {
			return err
		}
		rf = append(rf, rt)
		return nil
	})
}

// NextPageFailures obtains the next page of retryable failures.
func (d *DeliveryAttempts) NextPageFailures(c util.Context, tx *sql.Tx, prevID string, fetchTime time.Time, n int) (rf []RetryableFailure, err error) {
	var rows *sql.Rows
	rows, err = tx.Stmt(d.nextRetryablePage).QueryContext(c, failedDeliveryAttempt, fetchTime, n, prevID)
	if err != nil {
		return
	}
	defer rows.Close()
	return rf, doForRows(rows, "DeliveryAttempts.NextPageFailures", func(r SingleRow) error {
		var rt RetryableFailure
		if err := r.Scan(&(rt.ID), &(rt.FromActor), &(rt.DeliverTo), &(rt.Payload), &(rt.NAttempts), &(rt.LastAttempt)); err != nil {
			return err
		}
		rf = append(rf, rt)
		return nil
	})
}
