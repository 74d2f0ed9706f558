/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package channel

import (
	"net"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"go.osspkg.com/nioecho/address"
	"go.osspkg.com/nioecho/errs"
	"go.osspkg.com/nioecho/internal"
)

// ServerChannel is a listening tcp socket.
type ServerChannel struct {
	fd     int
	addr   net.Addr
	closed atomic.Bool
}

// Listen binds a non-blocking listening socket, port 0 picks a free port.
func Listen(addr string, backlog int) (*ServerChannel, error) {
	sa, domain, err := address.Sockaddr(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, socketFlags, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return nil, closeOnFail(os.NewSyscallError("setsockopt", err), fd)
	}
	if err = unix.Bind(fd, sa); err != nil {
		return nil, closeOnFail(os.NewSyscallError("bind", err), fd)
	}
	if err = unix.Listen(fd, internal.NotZero(backlog, DefaultBacklog)); err != nil {
		return nil, closeOnFail(os.NewSyscallError("listen", err), fd)
	}

	local, err := unix.Getsockname(fd)
	if err != nil {
		return nil, closeOnFail(os.NewSyscallError("getsockname", err), fd)
	}

	return &ServerChannel{fd: fd, addr: address.FromSockaddr(local)}, nil
}

func (v *ServerChannel) FD() int { return v.fd }

func (v *ServerChannel) Addr() net.Addr { return v.addr }

func (v *ServerChannel) IsOpen() bool { return !v.closed.Load() }

// Accept takes one pending connection, nil without error means nothing is pending.
func (v *ServerChannel) Accept() (*SocketChannel, error) {
	if v.closed.Load() {
		return nil, errs.ErrChannelClosed
	}

	for {
		fd, sa, err := unix.Accept4(v.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case err == unix.EINTR:
				continue
			case isWouldBlock(err), err == unix.ECONNABORTED:
				return nil, nil
			default:
				return nil, os.NewSyscallError("accept4", err)
			}
		}

		if err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return nil, closeOnFail(os.NewSyscallError("setsockopt", err), fd)
		}

		return &SocketChannel{fd: fd, remote: address.FromSockaddr(sa)}, nil
	}
}

func (v *ServerChannel) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	return closeFD(v.fd)
}
