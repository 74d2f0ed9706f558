/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"testing"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/nioecho/internal"
)

func TestUnit_ConfigDefaults(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{name: "empty", address: "", want: "0.0.0.0:8080"},
		{name: "host only", address: "0.0.0.0", want: "0.0.0.0:8080"},
		{name: "loopback only", address: "127.0.0.1", want: "127.0.0.1:8080"},
		{name: "port only", address: ":9000", want: "0.0.0.0:9000"},
		{name: "empty port", address: "127.0.0.1:", want: "127.0.0.1:8080"},
		{name: "full", address: "127.0.0.1:9001", want: "127.0.0.1:9001"},
		{name: "any port", address: "127.0.0.1:0", want: "127.0.0.1:0"},
		{name: "ipv6 host only", address: "::1", want: "[::1]:8080"},
		{name: "ipv6 full", address: "[::1]:9002", want: "[::1]:9002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{Address: tt.address}
			c.setDefaults()
			casecheck.Equal(t, tt.want, c.Address)
		})
	}

	c := Config{}
	c.setDefaults()
	casecheck.Equal(t, DefaultSuffix, c.Suffix)
	casecheck.Equal(t, internal.DefaultWindowSize, c.BufferSize)
}
