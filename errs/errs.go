/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package errs

import (
	"io"
	"net"
	"strings"
	"syscall"

	"go.osspkg.com/errors"
)

var (
	ErrChannelClosed  = errors.New("channel closed")
	ErrSelectorClosed = errors.New("selector closed")
)

// IsClosed reports errors that mean the peer or the local side has gone away.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrChannelClosed) ||
		errors.Is(err, ErrSelectorClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EBADF) ||
		strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		return true
	}
	return false
}

// IsReset reports an abortive close by the peer, as opposed to an orderly one.
func IsReset(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		strings.Contains(err.Error(), "connection reset by peer")
}
