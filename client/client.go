/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package client

import (
	"context"
	"fmt"

	"go.osspkg.com/algorithms/control"
	"go.osspkg.com/do"
	"go.osspkg.com/errors"
	"go.osspkg.com/logx"

	"go.osspkg.com/nioecho/channel"
	"go.osspkg.com/nioecho/internal"
	"go.osspkg.com/nioecho/selector"
)

var (
	ErrConnect    = errors.New("connect to server failed")
	ErrPeerClosed = errors.New("connection closed by server")
)

type (
	// ReplyFunc receives every reply of a session in order.
	ReplyFunc func(reply string)

	Client interface {
		Session(ctx context.Context, src Source, out ReplyFunc) error
	}

	_client struct {
		conf Config
		sem  control.Semaphore
		pool *internal.WindowPool
	}
)

func New(c Config) (Client, error) {
	addr, err := c.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}

	c.Address = addr.String()

	if c.MaxConns <= 0 {
		c.MaxConns = 1
	}

	cli := &_client{
		conf: c,
		sem:  control.NewSemaphore(c.MaxConns),
		pool: internal.NewWindowPool(c.BufferSize),
	}

	return cli, nil
}

// Session connects, then alternates one message from src with one reply until src is
// exhausted, the server goes away or ctx is done.
func (v *_client) Session(ctx context.Context, src Source, out ReplyFunc) (e error) {
	if out == nil {
		out = func(string) {}
	}

	v.sem.Acquire()
	defer func() { v.sem.Release() }()

	sel, err := selector.New(1)
	if err != nil {
		return fmt.Errorf("create selector: %w", err)
	}
	defer func() {
		e = errors.Wrap(e, sel.Close())
	}()

	sc, err := channel.Open(v.conf.Address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	s := &session{
		addr: v.conf.Address,
		sc:   sc,
		src:  src,
		out:  out,
		in:   v.pool.Get(),
		buf:  v.pool.Get(),
	}
	defer func() {
		v.pool.Put(s.in)
		v.pool.Put(s.buf)
	}()

	s.state = StateSending
	if sc.IsConnectionPending() {
		s.state = StateConnecting
	}
	key, err := sel.Register(sc, s.state.Interest(), s)
	if err != nil {
		return errors.Wrap(fmt.Errorf("register connection: %w", err), sc.Close())
	}

	stop := make(chan struct{})
	defer close(stop)
	do.Async(func() {
		select {
		case <-ctx.Done():
			internal.Log("Client: wakeup", sel.Wakeup(), sc.RemoteAddr())
		case <-stop:
		}
	}, func(err error) {
		logx.Error("Client: watcher", "err", err, "address", v.conf.Address)
	})

	timeout := internal.PollTimeout(v.conf.SelectTimeout)
	for s.state != StateClosed {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		keys, err := sel.Select(timeout)
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}
		for _, k := range keys {
			if k != key || !k.IsValid() {
				continue
			}
			if err = s.handle(k); err != nil {
				return err
			}
		}
	}

	logx.Debug("Session finished", "address", v.conf.Address)
	return nil
}
