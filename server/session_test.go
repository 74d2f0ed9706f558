/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package server

import (
	"context"
	"net"
	"testing"
	"time"

	"go.osspkg.com/casecheck"
	"golang.org/x/sys/unix"

	"go.osspkg.com/nioecho/buffer"
	"go.osspkg.com/nioecho/channel"
	"go.osspkg.com/nioecho/selector"
)

type testPeer struct {
	sc  *channel.SocketChannel
	key *selector.Key
}

func newTestServer(t *testing.T, conf Config) *_server {
	t.Helper()
	v := New(conf).(*_server)
	sel, err := selector.New(0)
	casecheck.NoError(t, err)
	v.sel = sel
	t.Cleanup(func() {
		casecheck.NoError(t, sel.Close())
	})
	return v
}

// connect registers one end of a socketpair with the server and returns the other.
func connect(t *testing.T, v *_server) testPeer {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	casecheck.NoError(t, err)

	local, err := channel.FromFD(fds[0])
	casecheck.NoError(t, err)
	remote, err := channel.FromFD(fds[1])
	casecheck.NoError(t, err)
	t.Cleanup(func() {
		casecheck.NoError(t, remote.Close())
	})

	key, err := v.register(local)
	casecheck.NoError(t, err)
	return testPeer{sc: remote, key: key}
}

func (p testPeer) send(t *testing.T, msg string) {
	t.Helper()
	n, err := p.sc.Write(buffer.Wrap([]byte(msg)))
	casecheck.NoError(t, err)
	casecheck.Equal(t, len(msg), n)
}

func (p testPeer) receive(t *testing.T, v *_server, size int) string {
	t.Helper()
	in := buffer.Allocate(size)
	drive(t, v, func() bool {
		_, err := p.sc.Read(in)
		casecheck.NoError(t, err)
		return !in.HasRemaining()
	})
	in.Flip()
	return string(in.Span())
}

func state(key *selector.Key) State {
	return key.Attachment().(*conn).state
}

// drive runs reactor ticks until cond holds.
func drive(t *testing.T, v *_server, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		casecheck.NoError(t, v.tick(context.TODO(), 10*time.Millisecond))
	}
}

func TestUnit_StateInterest(t *testing.T) {
	casecheck.Equal(t, selector.OpRead, StateAwaitingRequest.Interest())
	casecheck.Equal(t, selector.OpWrite, StateAwaitingResponse.Interest())
	casecheck.Equal(t, selector.Interest(0), State(0).Interest())
	casecheck.Equal(t, "awaiting_request", StateAwaitingRequest.String())
	casecheck.Equal(t, "awaiting_response", StateAwaitingResponse.String())
}

func TestUnit_SessionSingleFlight(t *testing.T) {
	v := newTestServer(t, Config{})

	var calls int
	v.HandleFunc(func(ctx context.Context, msg string, addr net.Addr) string {
		calls++
		return Acknowledge(DefaultSuffix)(ctx, msg, addr)
	})

	p := connect(t, v)
	casecheck.Equal(t, StateAwaitingRequest, state(p.key))
	casecheck.Equal(t, selector.OpRead, p.key.Interest())

	_, ok := v.sessions.Load(p.key)
	casecheck.True(t, !ok)

	// no reply before a request has been read
	casecheck.NoError(t, v.tick(context.TODO(), 10*time.Millisecond))
	casecheck.Equal(t, 0, calls)

	p.send(t, "alice")
	drive(t, v, func() bool { return state(p.key) == StateAwaitingResponse })
	casecheck.Equal(t, selector.OpWrite, p.key.Interest())
	msg, ok := v.sessions.Load(p.key)
	casecheck.True(t, ok)
	casecheck.Equal(t, "alice", msg)

	want := "alice" + DefaultSuffix
	casecheck.Equal(t, want, p.receive(t, v, len(want)))
	casecheck.Equal(t, StateAwaitingRequest, state(p.key))
	casecheck.Equal(t, selector.OpRead, p.key.Interest())
	casecheck.Equal(t, 1, calls)

	for i := 0; i < 3; i++ {
		casecheck.NoError(t, v.tick(context.TODO(), 10*time.Millisecond))
	}
	casecheck.Equal(t, 1, calls)

	p.send(t, "bob")
	want = "bob" + DefaultSuffix
	casecheck.Equal(t, want, p.receive(t, v, len(want)))
	casecheck.Equal(t, 2, calls)

	msg, ok = v.sessions.Load(p.key)
	casecheck.True(t, ok)
	casecheck.Equal(t, "bob", msg)
	casecheck.Equal(t, 1, v.sessions.Len())
}

func TestUnit_WriteUsesCurrentMessage(t *testing.T) {
	v := newTestServer(t, Config{Suffix: "!"})
	p := connect(t, v)

	for _, name := range []string{"first", "second", "third"} {
		p.send(t, name)
		casecheck.Equal(t, name+"!", p.receive(t, v, len(name)+1))
	}
}

func TestUnit_IsolationUnderFailure(t *testing.T) {
	v := newTestServer(t, Config{Suffix: "+ok"})
	a := connect(t, v)
	b := connect(t, v)

	a.send(t, "a1")
	casecheck.Equal(t, "a1+ok", a.receive(t, v, 5))

	b.send(t, "b1")
	drive(t, v, func() bool { return state(b.key) == StateAwaitingResponse })

	casecheck.NoError(t, a.sc.Close())
	drive(t, v, func() bool { return !a.key.IsValid() })

	_, ok := v.sessions.Load(a.key)
	casecheck.True(t, !ok)
	msg, ok := v.sessions.Load(b.key)
	casecheck.True(t, ok)
	casecheck.Equal(t, "b1", msg)

	casecheck.Equal(t, "b1+ok", b.receive(t, v, 5))

	b.send(t, "b2")
	casecheck.Equal(t, "b2+ok", b.receive(t, v, 5))
	casecheck.Equal(t, 1, v.sessions.Len())
	casecheck.Equal(t, 1, v.sel.Len())
}

func TestUnit_ReplyLargerThanWindow(t *testing.T) {
	v := newTestServer(t, Config{BufferSize: 8, Suffix: " is acknowledged"})
	p := connect(t, v)

	p.send(t, "12345678")
	want := "12345678 is acknowledged"
	casecheck.Equal(t, want, p.receive(t, v, len(want)))

	p.send(t, "0123456789abc")
	got := p.receive(t, v, 8+len(" is acknowledged"))
	casecheck.Equal(t, "01234567 is acknowledged", got)

	got = p.receive(t, v, 5+len(" is acknowledged"))
	casecheck.Equal(t, "89abc is acknowledged", got)
}

func TestUnit_InvalidUTF8IsReplaced(t *testing.T) {
	v := newTestServer(t, Config{Suffix: "."})
	p := connect(t, v)

	p.send(t, "a\xffb")
	msg := "a\uFFFDb."
	casecheck.Equal(t, msg, p.receive(t, v, len(msg)))
}

func TestUnit_AcceptFailurePausesListener(t *testing.T) {
	v := newTestServer(t, Config{Address: "127.0.0.1:0"})
	casecheck.NoError(t, v.listen())
	casecheck.Equal(t, selector.OpAccept, v.lkey.Interest())

	v.pauseAccept(unix.EMFILE)
	casecheck.Equal(t, selector.Interest(0), v.lkey.Interest())

	nc, err := net.Dial("tcp", v.Addr().String())
	casecheck.NoError(t, err)
	defer nc.Close() //nolint:errcheck

	// the pending connection is not taken while the listener rests
	casecheck.NoError(t, v.tick(context.TODO(), 0))
	casecheck.Equal(t, 1, v.sel.Len())

	drive(t, v, func() bool { return v.sel.Len() == 2 })
	casecheck.Equal(t, selector.OpAccept, v.lkey.Interest())
	casecheck.True(t, v.resumeAt.IsZero())
}

func TestUnit_ResumeAcceptBoundsTimeout(t *testing.T) {
	v := newTestServer(t, Config{Address: "127.0.0.1:0"})
	casecheck.NoError(t, v.listen())

	casecheck.Equal(t, time.Duration(-1), v.resumeAccept(-1))

	v.pauseAccept(unix.EMFILE)
	wait := v.resumeAccept(-1)
	casecheck.True(t, wait > 0 && wait <= acceptBackoff)
	casecheck.Equal(t, time.Millisecond, v.resumeAccept(time.Millisecond))

	v.resumeAt = time.Now().Add(-time.Millisecond)
	casecheck.Equal(t, time.Second, v.resumeAccept(time.Second))
	casecheck.Equal(t, selector.OpAccept, v.lkey.Interest())
}
