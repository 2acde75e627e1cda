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
	"sync"

	"github.com/outpostfed/apcore/util"
)

// OutboxEvent is the payload delivered to observers after an activity has
// been persisted and its side effects are visible in the store.
type OutboxEvent struct {
	Actor    string
	Activity util.Activity
	Object   util.Activity
}

// EventBus is a process-local publish/subscribe point for outbox events.
// Subscribers run synchronously in the emitting goroutine's call to
// Publish; a slow subscriber should hand work off to its own goroutine.
type EventBus struct {
	mu   sync.RWMutex
	subs []func(OutboxEvent)
}

// NewEventBus builds an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a callback invoked for every subsequent outbox event.
func (b *EventBus) Subscribe(f func(OutboxEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, f)
}

// Publish fans an event out to every subscriber.
func (b *EventBus) Publish(e OutboxEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.subs {
		f(e)
	}
}
