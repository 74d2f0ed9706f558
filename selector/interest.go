/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package selector

import (
	"strings"

	"golang.org/x/sys/unix"
)

// Interest is a set of operations a channel wants to be woken for.
type Interest uint8

const (
	OpAccept Interest = 1 << iota
	OpConnect
	OpRead
	OpWrite
)

var opNames = []struct {
	op   Interest
	name string
}{
	{OpAccept, "accept"},
	{OpConnect, "connect"},
	{OpRead, "read"},
	{OpWrite, "write"},
}

func (i Interest) Has(op Interest) bool {
	return i&op != 0
}

func (i Interest) String() string {
	if i == 0 {
		return "none"
	}
	names := make([]string, 0, len(opNames))
	for _, v := range opNames {
		if i.Has(v.op) {
			names = append(names, v.name)
		}
	}
	return strings.Join(names, "|")
}

func (i Interest) events() uint32 {
	var ev uint32
	if i.Has(OpAccept | OpRead) {
		ev |= unix.EPOLLIN
	}
	if i.Has(OpRead) {
		ev |= unix.EPOLLRDHUP
	}
	if i.Has(OpConnect | OpWrite) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// readyOps maps epoll events back onto the registered interest. Error and hang-up
// wake every interest so that the next I/O call reports the failure.
func readyOps(events uint32, interest Interest) Interest {
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		return interest
	}
	var ready Interest
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		ready |= OpAccept | OpRead
	}
	if events&unix.EPOLLOUT != 0 {
		ready |= OpConnect | OpWrite
	}
	return ready & interest
}
