// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package multiplexer

import (
	"errors"
	"sync"
)

// OneToMany fans messages from one producer out to any number of named
// receivers. Sends never block: a receiver that stops draining its channel
// loses messages instead of stalling the producer. That trade-off is
// deliberate, the producer here is the compositor's dispatch path.
type OneToMany[T any] struct {
	lock     sync.Mutex
	outbound map[string]chan T // Use map here to give names to outbound channels
	closed   bool
}

func NewOneToMany[T any]() *OneToMany[T] {
	return &OneToMany[T]{
		outbound: make(map[string]chan T),
	}
}

// Create a new receiver with a buffer of depth messages.
// Please do not close the returned channel manually, use CloseReceiver
func (o *OneToMany[T]) MakeReceiver(name string, depth int) (<-chan T, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return nil, errors.New("multiplexer has been closed")
	}
	if _, ok := o.outbound[name]; ok {
		return nil, errors.New("receiver with that name already exists")
	}
	rec := make(chan T, depth)
	o.outbound[name] = rec
	return rec, nil
}

// Closes the receiver channel with the given name and removes it from the multiplexer
func (o *OneToMany[T]) CloseReceiver(name string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return
	}
	if val, ok := o.outbound[name]; ok {
		close(val)
		delete(o.outbound, name)
	}
}

// Send hands msg to every receiver that still has buffer space
func (o *OneToMany[T]) Send(msg T) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return
	}
	for _, c := range o.outbound {
		select {
		case c <- msg:
		default:
			// Receiver is full, it loses this message
		}
	}
}

// Close all receiver channels and mark the plexer as closed
func (o *OneToMany[T]) Close() {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return
	}
	for _, c := range o.outbound {
		close(c)
	}
	o.outbound = nil
	o.closed = true
}
