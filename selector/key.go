/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package selector

import (
	"go.osspkg.com/nioecho/channel"
)

// Key is the registration of one channel with one selector.
type Key struct {
	sel        *Selector
	ch         channel.Channel
	fd         int
	interest   Interest
	ready      Interest
	attachment any
	valid      bool
}

func (v *Key) Channel() channel.Channel { return v.ch }

func (v *Key) Selector() *Selector { return v.sel }

func (v *Key) Interest() Interest { return v.interest }

// Ready returns the operations that fired in the select that returned this key.
func (v *Key) Ready() Interest { return v.ready }

func (v *Key) IsAcceptable() bool { return v.ready.Has(OpAccept) }

func (v *Key) IsConnectable() bool { return v.ready.Has(OpConnect) }

func (v *Key) IsReadable() bool { return v.ready.Has(OpRead) }

func (v *Key) IsWritable() bool { return v.ready.Has(OpWrite) }

func (v *Key) IsValid() bool { return v.valid }

func (v *Key) Attachment() any { return v.attachment }

func (v *Key) Attach(a any) any {
	prev := v.attachment
	v.attachment = a
	return prev
}

// SetInterest replaces the interest set, the change applies to the next select.
func (v *Key) SetInterest(ops Interest) error {
	if !v.valid {
		return ErrKeyCancelled
	}
	if err := v.sel.modify(v.fd, ops); err != nil {
		return err
	}
	v.interest = ops
	v.ready &= ops
	return nil
}

// Cancel deregisters the key and closes its channel. Repeated calls do nothing.
func (v *Key) Cancel() error {
	if !v.valid {
		return nil
	}
	v.valid = false
	v.ready = 0
	return v.sel.remove(v)
}
