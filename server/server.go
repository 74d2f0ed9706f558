/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"go.osspkg.com/syncing"

	"go.osspkg.com/nioecho/channel"
	"go.osspkg.com/nioecho/internal"
	"go.osspkg.com/nioecho/selector"
)

const acceptBackoff = 100 * time.Millisecond

type (
	// HandlerFunc composes the reply for the last message received on a connection.
	HandlerFunc func(ctx context.Context, msg string, addr net.Addr) string

	Server interface {
		HandleFunc(HandlerFunc)
		ListenAndServe(ctx context.Context) error
		Addr() net.Addr
	}

	_server struct {
		conf        Config
		handlerFunc HandlerFunc
		sync        syncing.Switch
		wg          syncing.Group

		sel      *selector.Selector
		listener *channel.ServerChannel
		lkey     *selector.Key
		resumeAt time.Time
		sessions *Sessions
		pool     *internal.WindowPool
		seq      uint64
		addr     atomic.Value
	}
)

func New(conf Config) Server {
	conf.setDefaults()
	return &_server{
		conf:        conf,
		handlerFunc: Acknowledge(conf.Suffix),
		sync:        syncing.NewSwitch(),
		wg:          syncing.NewGroup(),
		sessions:    NewSessions(),
		pool:        internal.NewWindowPool(conf.BufferSize),
	}
}

// Acknowledge replies with the received text followed by suffix.
func Acknowledge(suffix string) HandlerFunc {
	return func(_ context.Context, msg string, _ net.Addr) string {
		return msg + suffix
	}
}

func (v *_server) HandleFunc(fn HandlerFunc) {
	if v.sync.IsOn() || fn == nil {
		return
	}
	v.handlerFunc = fn
}

// Addr is the bound listen address, nil until the server is listening.
func (v *_server) Addr() net.Addr {
	if a, ok := v.addr.Load().(net.Addr); ok {
		return a
	}
	return nil
}

func (v *_server) ListenAndServe(ctx context.Context) (err error) {
	if !v.sync.On() {
		return internal.ErrServAlreadyRunning
	}

	if v.sel, err = selector.New(v.conf.CountEvents); err != nil {
		v.sync.Off()
		return fmt.Errorf("create selector: %w", err)
	}
	if err = v.listen(); err != nil {
		v.sync.Off()
		return errors.Wrap(err, v.sel.Close())
	}

	ctx, cancel := context.WithCancel(ctx)

	v.wg.Background(func() {
		<-ctx.Done()
		internal.Log("Server: wakeup", v.sel.Wakeup(), v.Addr())
	})

	defer func() {
		cancel()
		v.wg.Wait()
		err = errors.Wrap(err, v.sel.Close())
		v.sessions.Reset()
		v.resumeAt = time.Time{}
		v.sync.Off()
		logx.Info("Server stopped", "addr", v.Addr())
	}()

	logx.Info("Server started", "addr", v.Addr())

	timeout := internal.PollTimeout(v.conf.SelectTimeout)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err = v.tick(ctx, timeout); err != nil {
			logx.Error("Server: select", "err", err, "addr", v.Addr())
			return err
		}
	}
}

func (v *_server) listen() (err error) {
	if v.listener, err = channel.Listen(v.conf.Address, v.conf.Backlog); err != nil {
		return fmt.Errorf("listen %s: %w", v.conf.Address, err)
	}
	if v.lkey, err = v.sel.Register(v.listener, selector.OpAccept, nil); err != nil {
		return errors.Wrap(fmt.Errorf("register listener: %w", err), v.listener.Close())
	}
	v.addr.Store(v.listener.Addr())
	return nil
}

// tick waits once and dispatches every ready key. Only a selector failure is returned,
// connection failures are handled per connection.
func (v *_server) tick(ctx context.Context, timeout time.Duration) error {
	keys, err := v.sel.Select(v.resumeAccept(timeout))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !key.IsValid() {
			continue
		}
		switch {
		case key.IsAcceptable():
			v.accept()
		case key.IsReadable():
			v.read(key)
		case key.IsWritable():
			v.write(ctx, key)
		}
	}
	return nil
}

func (v *_server) accept() {
	sc, err := v.listener.Accept()
	if err != nil {
		v.pauseAccept(err)
		return
	}
	if sc == nil {
		return
	}
	if _, err = v.register(sc); err != nil {
		internal.Log("Server: register connection", err, sc.RemoteAddr())
		internal.Log("Server: close", sc.Close(), sc.RemoteAddr())
	}
}

// pauseAccept stops watching the listener for a while, a failing accept would
// otherwise fire on every select.
func (v *_server) pauseAccept(cause error) {
	logx.Error("Server: accept", "err", cause, "addr", v.Addr(), "retry", acceptBackoff)
	if err := v.lkey.SetInterest(0); err != nil {
		logx.Error("Server: pause accept", "err", err, "addr", v.Addr())
		return
	}
	v.resumeAt = time.Now().Add(acceptBackoff)
}

// resumeAccept restores the listener once the pause is over and shortens the
// select timeout so the pause cannot outlive it.
func (v *_server) resumeAccept(timeout time.Duration) time.Duration {
	if v.resumeAt.IsZero() {
		return timeout
	}
	wait := time.Until(v.resumeAt)
	if wait > 0 {
		if timeout < 0 || wait < timeout {
			return wait
		}
		return timeout
	}
	v.resumeAt = time.Time{}
	if err := v.lkey.SetInterest(selector.OpAccept); err != nil {
		logx.Error("Server: resume accept", "err", err, "addr", v.Addr())
	}
	return timeout
}

func (v *_server) register(sc *channel.SocketChannel) (*selector.Key, error) {
	v.seq++
	c := &conn{
		id:    v.seq,
		addr:  sc.RemoteAddr(),
		state: StateAwaitingRequest,
		in:    v.pool.Get(),
		out:   v.pool.Get(),
	}
	key, err := v.sel.Register(sc, c.state.Interest(), c)
	if err != nil {
		v.release(c)
		return nil, err
	}
	logx.Debug("Connection accepted", "id", c.id, "addr", c.addr)
	return key, nil
}

// transition moves the connection to state, the interest set follows the state.
func (v *_server) transition(key *selector.Key, c *conn, state State) error {
	c.state = state
	return key.SetInterest(state.Interest())
}

func (v *_server) read(key *selector.Key) {
	c := key.Attachment().(*conn)
	if c.state != StateAwaitingRequest {
		return
	}
	sc := key.Channel().(*channel.SocketChannel)

	c.in.Clear()
	n, err := sc.Read(c.in)
	if err != nil {
		v.close(key, c, err)
		return
	}
	if n == 0 {
		return
	}

	c.in.Flip()
	msg := strings.ToValidUTF8(string(c.in.Span()), "\uFFFD")
	v.sessions.Store(key, msg)
	logx.Info("Message received", "id", c.id, "addr", c.addr, "msg", msg)

	if err = v.transition(key, c, StateAwaitingResponse); err != nil {
		v.close(key, c, err)
	}
}

func (v *_server) write(ctx context.Context, key *selector.Key) {
	c := key.Attachment().(*conn)
	if c.state != StateAwaitingResponse {
		return
	}
	sc := key.Channel().(*channel.SocketChannel)

	if c.pending == nil {
		msg, ok := v.sessions.Load(key)
		if !ok {
			return
		}
		c.pending = c.prepare(v.handlerFunc(ctx, msg, c.addr))
	}

	if _, err := sc.Write(c.pending); err != nil {
		v.close(key, c, err)
		return
	}
	if c.pending.HasRemaining() {
		logx.Debug("Partial write", "id", c.id, "addr", c.addr, "remaining", c.pending.Remaining())
		return
	}
	c.pending = nil

	if err := v.transition(key, c, StateAwaitingRequest); err != nil {
		v.close(key, c, err)
	}
}

// close tears down one connection without touching any other.
func (v *_server) close(key *selector.Key, c *conn, cause error) {
	internal.Log("Server: connection", cause, c.addr)
	v.sessions.Delete(key)
	internal.Log("Server: close", key.Cancel(), c.addr)
	v.release(c)
	logx.Debug("Connection closed", "id", c.id, "addr", c.addr)
}

func (v *_server) release(c *conn) {
	v.pool.Put(c.in)
	v.pool.Put(c.out)
	c.in, c.out, c.pending = nil, nil, nil
}
