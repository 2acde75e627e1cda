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
	"fmt"
	"net/url"
	"sync"

	"github.com/outpostfed/apcore/framework/conn"
	"github.com/outpostfed/apcore/services"
	"github.com/outpostfed/apcore/util"
)

// deliveryJob is one recipient's worth of work: the from-actor used to pick
// the signing key, the already-serialized de-normalized activity body, and
// the destination inbox.
type deliveryJob struct {
	ctx       util.Context
	fromActor string
	payload   []byte
	to        *url.URL
}

// DeliveryEngine implements C8: a fixed-size worker pool drains a channel of
// per-recipient jobs, each performing one signed POST whose outcome the
// transport records in delivery_attempts. A failed job is not re-enqueued,
// and nothing in this package or in Run starts the framework/conn retrier,
// so a failed delivery is recorded but not attempted again.
type DeliveryEngine struct {
	tc *conn.Controller
	pk *services.PrivateKeys

	jobs chan deliveryJob
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDeliveryEngine builds a DeliveryEngine whose job queue holds queueSize
// jobs. workerCount is not used here; the pool size is the count passed to
// Start.
func NewDeliveryEngine(tc *conn.Controller, pk *services.PrivateKeys, workerCount, queueSize int) *DeliveryEngine {
	return &DeliveryEngine{
		tc:   tc,
		pk:   pk,
		jobs: make(chan deliveryJob, queueSize),
		stop: make(chan struct{}),
	}
}

// Start launches the worker pool.
func (d *DeliveryEngine) Start(workerCount int) {
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Stop drains in-flight jobs and halts the worker pool.
func (d *DeliveryEngine) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Enqueue schedules one recipient for delivery. Blocks if the queue is
// full; the caller's request context governs how long it waits.
func (d *DeliveryEngine) Enqueue(c util.Context, fromActor, payload string, to string) error {
	u, err := url.Parse(to)
	if err != nil {
		return fmt.Errorf("invalid delivery recipient %q: %w", to, err)
	}
	job := deliveryJob{ctx: c, fromActor: fromActor, payload: []byte(payload), to: u}
	select {
	case d.jobs <- job:
		return nil
	case <-d.stop:
		return fmt.Errorf("delivery engine is stopped")
	case <-c.Done():
		return c.Err()
	}
}

func (d *DeliveryEngine) work() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobs:
			d.deliver(job)
		case <-d.stop:
			return
		}
	}
}

func (d *DeliveryEngine) deliver(job deliveryJob) {
	privKey, pubKeyID, err := d.pk.GetActorHTTPSignatureKey(job.ctx, job.fromActor)
	if err != nil {
		util.ErrorLogger.Errorf("delivery engine failed to obtain signing key for %s: %s", job.fromActor, err)
		return
	}
	t, err := d.tc.Get(privKey, pubKeyID)
	if err != nil {
		util.ErrorLogger.Errorf("delivery engine failed to build transport for %s: %s", job.fromActor, err)
		return
	}
	fromActorIRI, err := url.Parse(job.fromActor)
	if err != nil {
		util.ErrorLogger.Errorf("delivery engine got unparseable from-actor %q: %s", job.fromActor, err)
		return
	}
	c := job.ctx
	c.WithActorIRI(fromActorIRI)
	if err := t.Deliver(c, job.payload, job.to); err != nil {
		util.ErrorLogger.Errorf("delivery engine failed to deliver to %s: %s", job.to, err)
	}
}
