/*
 *  Copyright (c) 2024 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal

import (
	"net"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"

	"go.osspkg.com/nioecho/errs"
)

var (
	ErrServAlreadyRunning = errors.New("server already running")
)

// Unexpected is false for nil and for an orderly close. A reset by the peer counts.
func Unexpected(err error) bool {
	if err == nil {
		return false
	}
	return errs.IsReset(err) || !errs.IsClosed(err)
}

// Log writes unexpected connection errors, normal close errors are dropped.
func Log(message string, err error, addr net.Addr) {
	if !Unexpected(err) {
		return
	}
	logx.Warn(message, "err", err, "addr", addr)
}
