/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package server

import (
	"net"

	"go.osspkg.com/nioecho/buffer"
	"go.osspkg.com/nioecho/selector"
)

// State is the protocol phase of one connection.
type State uint8

const (
	StateAwaitingRequest State = iota + 1
	StateAwaitingResponse
)

// Interest is what the selector must watch while a connection is in this state.
func (s State) Interest() selector.Interest {
	switch s {
	case StateAwaitingRequest:
		return selector.OpRead
	case StateAwaitingResponse:
		return selector.OpWrite
	default:
		return 0
	}
}

func (s State) String() string {
	switch s {
	case StateAwaitingRequest:
		return "awaiting_request"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// conn is attached to the selection key of every accepted connection.
type conn struct {
	id      uint64
	addr    net.Addr
	state   State
	in      *buffer.Window
	out     *buffer.Window
	pending *buffer.Window
}

// prepare fills the outgoing window with reply, replies larger than the pooled
// window get their own.
func (c *conn) prepare(reply string) *buffer.Window {
	b := []byte(reply)
	if len(b) > c.out.Capacity() {
		return buffer.Wrap(b)
	}
	c.out.Clear()
	_ = c.out.PutBytes(b) //nolint:errcheck
	c.out.Flip()
	return c.out
}

// Sessions keeps the last message received on every connection.
type Sessions struct {
	list map[*selector.Key]string
}

func NewSessions() *Sessions {
	return &Sessions{list: make(map[*selector.Key]string)}
}

func (v *Sessions) Load(key *selector.Key) (string, bool) {
	msg, ok := v.list[key]
	return msg, ok
}

func (v *Sessions) Store(key *selector.Key, msg string) {
	v.list[key] = msg
}

func (v *Sessions) Delete(key *selector.Key) {
	delete(v.list, key)
}

func (v *Sessions) Len() int {
	return len(v.list)
}

func (v *Sessions) Reset() {
	v.list = make(map[*selector.Key]string)
}
