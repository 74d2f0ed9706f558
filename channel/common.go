/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package channel

import (
	"os"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"
)

const DefaultBacklog = 128

type (
	// Channel is an OS-level stream in non-blocking mode that a selector can watch.
	Channel interface {
		FD() int
		IsOpen() bool
		Close() error
	}
)

const socketFlags = unix.SOCK_STREAM | unix.SOCK_NONBLOCK | unix.SOCK_CLOEXEC

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func closeFD(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}

// closeOnFail releases fd after a failed setup step and keeps err as the primary cause.
func closeOnFail(err error, fd int) error {
	if e := closeFD(fd); e != nil {
		return errors.Wrap(err, e)
	}
	return err
}
