/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package errs_test

import (
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/nioecho/errs"
)

func TestUnit_IsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped eof", err: fmt.Errorf("read: %w", io.EOF), want: true},
		{name: "net closed", err: net.ErrClosed, want: true},
		{name: "channel", err: errs.ErrChannelClosed, want: true},
		{name: "selector", err: fmt.Errorf("select: %w", errs.ErrSelectorClosed), want: true},
		{name: "reset", err: syscall.ECONNRESET, want: true},
		{name: "pipe", err: fmt.Errorf("write: %w", syscall.EPIPE), want: true},
		{name: "refused", err: syscall.ECONNREFUSED, want: false},
		{name: "other", err: fmt.Errorf("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			casecheck.Equal(t, tt.want, errs.IsClosed(tt.err))
		})
	}
}

func TestUnit_IsReset(t *testing.T) {
	casecheck.True(t, !errs.IsReset(nil))
	casecheck.True(t, !errs.IsReset(io.EOF))
	casecheck.True(t, !errs.IsReset(syscall.EPIPE))
	casecheck.True(t, errs.IsReset(syscall.ECONNRESET))
	casecheck.True(t, errs.IsReset(fmt.Errorf("read: %w", syscall.ECONNRESET)))
}
