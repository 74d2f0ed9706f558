/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package selector

import (
	"encoding/binary"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"

	"go.osspkg.com/nioecho/channel"
	"go.osspkg.com/nioecho/errs"
	"go.osspkg.com/nioecho/internal"
)

const DefaultCountEvents = 128

var (
	ErrChannelClosed     = errs.ErrChannelClosed
	ErrSelectorClosed    = errs.ErrSelectorClosed
	ErrAlreadyRegistered = errors.New("channel registered with another selector")
	ErrKeyCancelled      = errors.New("selection key cancelled")
)

// owners tracks which selector a channel is registered with.
var owners sync.Map

// Selector multiplexes registered channels over one epoll instance.
// Everything except Wakeup must be called from the goroutine that runs Select.
type Selector struct {
	epfd   int
	wakefd int
	wmux   sync.Mutex
	keys   map[int]*Key
	events []unix.EpollEvent
	closed atomic.Bool
}

func New(countEvents int) (*Selector, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(os.NewSyscallError("eventfd", err), unix.Close(epfd))
	}

	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, ev); err != nil {
		return nil, errors.Wrap(os.NewSyscallError("epoll_ctl", err), unix.Close(wakefd), unix.Close(epfd))
	}

	return &Selector{
		epfd:   epfd,
		wakefd: wakefd,
		keys:   make(map[int]*Key, internal.NotZero(countEvents, DefaultCountEvents)),
		events: make([]unix.EpollEvent, internal.NotZero(countEvents, DefaultCountEvents)),
	}, nil
}

// Register starts watching ch for the given interest. Registering a channel again with
// the same selector updates the existing key.
func (v *Selector) Register(ch channel.Channel, ops Interest, attachment any) (*Key, error) {
	if v.closed.Load() {
		return nil, ErrSelectorClosed
	}
	if !ch.IsOpen() {
		return nil, ErrChannelClosed
	}

	if owner, ok := owners.Load(ch); ok {
		if owner.(*Selector) != v {
			return nil, ErrAlreadyRegistered
		}
		if key, ok := v.keys[ch.FD()]; ok && key.ch == ch {
			if err := key.SetInterest(ops); err != nil {
				return nil, err
			}
			key.attachment = attachment
			return key, nil
		}
	}

	if _, loaded := owners.LoadOrStore(ch, v); loaded {
		return nil, ErrAlreadyRegistered
	}

	fd := ch.FD()
	ev := &unix.EpollEvent{Events: ops.events(), Fd: int32(fd)}
	if err := unix.EpollCtl(v.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		owners.Delete(ch)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}

	key := &Key{
		sel:        v,
		ch:         ch,
		fd:         fd,
		interest:   ops,
		attachment: attachment,
		valid:      true,
	}
	v.keys[fd] = key
	return key, nil
}

func (v *Selector) modify(fd int, ops Interest) error {
	if v.closed.Load() {
		return ErrSelectorClosed
	}
	ev := &unix.EpollEvent{Events: ops.events(), Fd: int32(fd)}
	return os.NewSyscallError("epoll_ctl", unix.EpollCtl(v.epfd, unix.EPOLL_CTL_MOD, fd, ev))
}

func (v *Selector) remove(key *Key) error {
	if cur, ok := v.keys[key.fd]; ok && cur == key {
		delete(v.keys, key.fd)
	}
	owners.Delete(key.ch)

	var err error
	if !v.closed.Load() {
		err = unix.EpollCtl(v.epfd, unix.EPOLL_CTL_DEL, key.fd, nil)
		if err == unix.ENOENT || err == unix.EBADF {
			err = nil
		}
	}
	return errors.Wrap(os.NewSyscallError("epoll_ctl", err), key.ch.Close())
}

// Select blocks until at least one registered channel is ready, the timeout elapses or
// Wakeup is called. A negative timeout waits forever, zero only polls.
// An empty result is not an error, the caller simply selects again.
func (v *Selector) Select(timeout time.Duration) ([]*Key, error) {
	if v.closed.Load() {
		return nil, ErrSelectorClosed
	}

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
		if msec == 0 && timeout > 0 {
			msec = 1
		}
	}

	n, err := unix.EpollWait(v.epfd, v.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("epoll_wait", err)
	}

	selected := make([]*Key, 0, n)
	for i := 0; i < n; i++ {
		ev := v.events[i]
		fd := int(ev.Fd)
		if fd == v.wakefd {
			v.drainWakeup()
			continue
		}
		key, ok := v.keys[fd]
		if !ok {
			continue
		}
		if key.ready = readyOps(ev.Events, key.interest); key.ready == 0 {
			continue
		}
		selected = append(selected, key)
	}
	return selected, nil
}

// Wakeup makes a blocked or the next Select return. Safe for concurrent use.
func (v *Selector) Wakeup() error {
	v.wmux.Lock()
	defer v.wmux.Unlock()

	if v.closed.Load() {
		return ErrSelectorClosed
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], 1)
	_, err := unix.Write(v.wakefd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return os.NewSyscallError("write", err)
}

func (v *Selector) drainWakeup() {
	var b [8]byte
	for {
		if _, err := unix.Read(v.wakefd, b[:]); err != unix.EINTR {
			return
		}
	}
}

// Keys returns the currently registered keys.
func (v *Selector) Keys() []*Key {
	list := make([]*Key, 0, len(v.keys))
	for _, key := range v.keys {
		list = append(list, key)
	}
	return list
}

func (v *Selector) Len() int {
	return len(v.keys)
}

// Close cancels every key, closing its channel, and releases the epoll instance.
func (v *Selector) Close() (err error) {
	v.wmux.Lock()
	defer v.wmux.Unlock()

	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, key := range v.Keys() {
		err = errors.Wrap(err, key.Cancel())
	}

	return errors.Wrap(err,
		os.NewSyscallError("close", unix.Close(v.wakefd)),
		os.NewSyscallError("close", unix.Close(v.epfd)),
	)
}
