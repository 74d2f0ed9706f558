/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package internal

import (
	"go.osspkg.com/ioutils/pool"

	"go.osspkg.com/nioecho/buffer"
)

const DefaultWindowSize = 1024

type WindowPool struct {
	pool interface {
		Get() *buffer.Window
		Put(*buffer.Window)
	}
}

// NewWindowPool hands out cleared windows of the given capacity.
func NewWindowPool(size int) *WindowPool {
	size = NotZero(size, DefaultWindowSize)
	return &WindowPool{
		pool: pool.New[*buffer.Window](func() *buffer.Window {
			return buffer.Allocate(size)
		}),
	}
}

func (v *WindowPool) Get() *buffer.Window {
	w := v.pool.Get()
	w.Clear()
	return w
}

func (v *WindowPool) Put(w *buffer.Window) {
	if w == nil {
		return
	}
	v.pool.Put(w)
}
