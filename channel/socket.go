/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package channel

import (
	"io"
	"net"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"go.osspkg.com/nioecho/address"
	"go.osspkg.com/nioecho/buffer"
	"go.osspkg.com/nioecho/errs"
)

// SocketChannel is a connected (or connecting) stream socket.
type SocketChannel struct {
	fd      int
	remote  net.Addr
	pending bool
	closed  atomic.Bool
}

// Open starts a non-blocking connect to addr.
func Open(addr string) (*SocketChannel, error) {
	sa, domain, err := address.Sockaddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, socketFlags, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}

	v := &SocketChannel{fd: fd, remote: address.FromSockaddr(sa)}

	switch err = unix.Connect(fd, sa); err {
	case nil:
	case unix.EINPROGRESS, unix.EINTR:
		v.pending = true
	default:
		return nil, closeOnFail(os.NewSyscallError("connect", err), fd)
	}

	if err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return nil, closeOnFail(os.NewSyscallError("setsockopt", err), fd)
	}

	return v, nil
}

// FromFD adopts an already connected descriptor and switches it to non-blocking mode.
func FromFD(fd int) (*SocketChannel, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, os.NewSyscallError("setnonblock", err)
	}
	v := &SocketChannel{fd: fd}
	if sa, err := unix.Getpeername(fd); err == nil {
		v.remote = address.FromSockaddr(sa)
	}
	return v, nil
}

func (v *SocketChannel) FD() int { return v.fd }

func (v *SocketChannel) RemoteAddr() net.Addr { return v.remote }

func (v *SocketChannel) IsOpen() bool { return !v.closed.Load() }

func (v *SocketChannel) IsConnectionPending() bool { return v.pending }

// FinishConnect completes a pending connect. It returns false while the handshake is
// still in progress and the socket error once it has failed.
func (v *SocketChannel) FinishConnect() (bool, error) {
	if v.closed.Load() {
		return false, errs.ErrChannelClosed
	}
	if !v.pending {
		return true, nil
	}

	code, err := unix.GetsockoptInt(v.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, os.NewSyscallError("getsockopt", err)
	}

	switch errno := unix.Errno(code); errno {
	case 0:
		// no error yet is also what an unfinished handshake reports
		if _, err = unix.Getpeername(v.fd); err != nil {
			if err == unix.ENOTCONN {
				return false, nil
			}
			return false, os.NewSyscallError("getpeername", err)
		}
		v.pending = false
		return true, nil
	case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
		return false, nil
	default:
		return false, os.NewSyscallError("connect", errno)
	}
}

// Read fills w from position up to limit. It returns 0 with no error when nothing
// is available and io.EOF once the peer has closed its side.
func (v *SocketChannel) Read(w *buffer.Window) (int, error) {
	if v.closed.Load() {
		return 0, errs.ErrChannelClosed
	}
	p := w.Span()
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, err := unix.Read(v.fd, p)
		if err != nil {
			switch {
			case err == unix.EINTR:
				continue
			case isWouldBlock(err):
				return 0, nil
			default:
				return 0, os.NewSyscallError("read", err)
			}
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, w.SetPosition(w.Position() + n)
	}
}

// Write drains w from position up to limit as far as the socket accepts.
func (v *SocketChannel) Write(w *buffer.Window) (int, error) {
	if v.closed.Load() {
		return 0, errs.ErrChannelClosed
	}
	p := w.Span()
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, err := unix.Write(v.fd, p)
		if err != nil {
			switch {
			case err == unix.EINTR:
				continue
			case isWouldBlock(err):
				return 0, nil
			default:
				return 0, os.NewSyscallError("write", err)
			}
		}
		return n, w.SetPosition(w.Position() + n)
	}
}

func (v *SocketChannel) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	return closeFD(v.fd)
}
