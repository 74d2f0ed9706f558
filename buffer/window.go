/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package buffer

import (
	"fmt"

	"go.osspkg.com/errors"
)

var (
	ErrOverflow  = errors.New("buffer overflow")
	ErrUnderflow = errors.New("buffer underflow")
	ErrIndex     = errors.New("index out of limit")
	ErrReadOnly  = errors.New("read-only buffer")
	ErrPosition  = errors.New("invalid position or limit")
)

// Window is a fixed-capacity byte region with a position and a limit.
// 0 <= position <= limit <= capacity holds after every call.
type Window struct {
	b        []byte
	pos      int
	lim      int
	readonly bool
}

func Allocate(capacity int) *Window {
	if capacity < 0 {
		capacity = 0
	}
	return Wrap(make([]byte, capacity))
}

// Wrap uses b as the backing storage, changes are visible in both directions.
func Wrap(b []byte) *Window {
	return &Window{b: b[:len(b):len(b)], lim: len(b)}
}

func (v *Window) Capacity() int { return len(v.b) }

func (v *Window) Position() int { return v.pos }

func (v *Window) Limit() int { return v.lim }

func (v *Window) Remaining() int { return v.lim - v.pos }

func (v *Window) HasRemaining() bool { return v.pos < v.lim }

func (v *Window) IsReadOnly() bool { return v.readonly }

func (v *Window) SetPosition(p int) error {
	if p < 0 || p > v.lim {
		return fmt.Errorf("%w: position %d, limit %d", ErrPosition, p, v.lim)
	}
	v.pos = p
	return nil
}

// SetLimit moves the limit, a position beyond the new limit is pulled back to it.
func (v *Window) SetLimit(l int) error {
	if l < 0 || l > len(v.b) {
		return fmt.Errorf("%w: limit %d, capacity %d", ErrPosition, l, len(v.b))
	}
	v.lim = l
	if v.pos > l {
		v.pos = l
	}
	return nil
}

// Flip switches from filling to draining: limit = position, position = 0.
func (v *Window) Flip() {
	v.lim = v.pos
	v.pos = 0
}

func (v *Window) Clear() {
	v.pos = 0
	v.lim = len(v.b)
}

func (v *Window) Rewind() {
	v.pos = 0
}

// Reset is Clear, used by pools.
func (v *Window) Reset() {
	v.Clear()
}

// Compact moves the unread bytes to the front and leaves the window ready for filling.
func (v *Window) Compact() error {
	if v.readonly {
		return ErrReadOnly
	}
	n := copy(v.b, v.b[v.pos:v.lim])
	v.pos = n
	v.lim = len(v.b)
	return nil
}

func (v *Window) Put(c byte) error {
	if v.readonly {
		return ErrReadOnly
	}
	if v.pos >= v.lim {
		return ErrOverflow
	}
	v.b[v.pos] = c
	v.pos++
	return nil
}

func (v *Window) Get() (byte, error) {
	if v.pos >= v.lim {
		return 0, ErrUnderflow
	}
	c := v.b[v.pos]
	v.pos++
	return c, nil
}

func (v *Window) PutAt(i int, c byte) error {
	if v.readonly {
		return ErrReadOnly
	}
	if i < 0 || i >= v.lim {
		return ErrIndex
	}
	v.b[i] = c
	return nil
}

func (v *Window) GetAt(i int) (byte, error) {
	if i < 0 || i >= v.lim {
		return 0, ErrIndex
	}
	return v.b[i], nil
}

// PutBytes writes all of p or nothing.
func (v *Window) PutBytes(p []byte) error {
	if v.readonly {
		return ErrReadOnly
	}
	if len(p) > v.Remaining() {
		return ErrOverflow
	}
	v.pos += copy(v.b[v.pos:v.lim], p)
	return nil
}

// GetBytes fills all of p or reads nothing.
func (v *Window) GetBytes(p []byte) error {
	if len(p) > v.Remaining() {
		return ErrUnderflow
	}
	v.pos += copy(p, v.b[v.pos:v.lim])
	return nil
}

// Span returns the bytes between position and limit without copying.
func (v *Window) Span() []byte {
	return v.b[v.pos:v.lim]
}

// Slice creates a window over [position, limit) sharing storage with v.
func (v *Window) Slice() *Window {
	w := Wrap(v.b[v.pos:v.lim])
	w.readonly = v.readonly
	return w
}

func (v *Window) Duplicate() *Window {
	w := *v
	return &w
}

// ReadOnly returns a view that observes writes to v and rejects its own.
func (v *Window) ReadOnly() *Window {
	w := v.Duplicate()
	w.readonly = true
	return w
}

func (v *Window) String() string {
	return fmt.Sprintf("capacity: %d, position: %d, limit: %d", len(v.b), v.pos, v.lim)
}
