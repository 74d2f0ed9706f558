/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package client

import (
	"fmt"
	"io"
	"strings"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"

	"go.osspkg.com/nioecho/buffer"
	"go.osspkg.com/nioecho/channel"
	"go.osspkg.com/nioecho/selector"
)

// State is the protocol phase of a client session.
type State uint8

const (
	StateConnecting State = iota + 1
	StateSending
	StateAwaitingReply
	StateClosed
)

func (s State) Interest() selector.Interest {
	switch s {
	case StateConnecting:
		return selector.OpConnect
	case StateSending:
		return selector.OpWrite
	case StateAwaitingReply:
		return selector.OpRead
	default:
		return 0
	}
}

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type session struct {
	addr    string
	sc      *channel.SocketChannel
	state   State
	src     Source
	out     ReplyFunc
	in      *buffer.Window
	buf     *buffer.Window
	pending *buffer.Window
}

func (s *session) transition(key *selector.Key, state State) error {
	s.state = state
	if state == StateClosed {
		return nil
	}
	return key.SetInterest(state.Interest())
}

func (s *session) handle(key *selector.Key) error {
	switch s.state {
	case StateConnecting:
		if !key.IsConnectable() {
			return nil
		}
		return s.connect(key)
	case StateSending:
		if !key.IsWritable() {
			return nil
		}
		return s.send(key)
	case StateAwaitingReply:
		if !key.IsReadable() {
			return nil
		}
		return s.receive(key)
	default:
		return nil
	}
}

func (s *session) connect(key *selector.Key) error {
	ok, err := s.sc.FinishConnect()
	if err != nil {
		s.state = StateClosed
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if !ok {
		return nil
	}
	logx.Debug("Connected", "address", s.addr)
	return s.transition(key, StateSending)
}

func (s *session) send(key *selector.Key) error {
	if s.pending == nil {
		msg, ok := s.src.Next()
		if !ok {
			return s.transition(key, StateClosed)
		}
		s.pending = s.prepare(msg)
	}

	if _, err := s.sc.Write(s.pending); err != nil {
		s.state = StateClosed
		return fmt.Errorf("write: %w", err)
	}
	if s.pending.HasRemaining() {
		return nil
	}
	s.pending = nil

	return s.transition(key, StateAwaitingReply)
}

func (s *session) receive(key *selector.Key) error {
	s.in.Clear()
	n, err := s.sc.Read(s.in)
	if err != nil {
		s.state = StateClosed
		if errors.Is(err, io.EOF) {
			return ErrPeerClosed
		}
		return fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return nil
	}

	s.in.Flip()
	s.out(strings.ToValidUTF8(string(s.in.Span()), "\uFFFD"))

	return s.transition(key, StateSending)
}

func (s *session) prepare(msg string) *buffer.Window {
	b := []byte(msg)
	if len(b) > s.buf.Capacity() {
		return buffer.Wrap(b)
	}
	s.buf.Clear()
	_ = s.buf.PutBytes(b) //nolint:errcheck
	s.buf.Flip()
	return s.buf
}
