/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package client

import (
	"net"
	"strconv"
	"time"
)

const DefaultPort = 8080

type Config struct {
	Address       string        `yaml:"address"`
	BufferSize    int           `yaml:"buffer_size"`
	MaxConns      uint64        `yaml:"max_conns"`
	SelectTimeout time.Duration `yaml:"select_timeout"`
}

// Resolve returns the tcp address of the server, localhost:8080 when empty.
func (c Config) Resolve() (*net.TCPAddr, error) {
	if len(c.Address) == 0 {
		c.Address = net.JoinHostPort("127.0.0.1", strconv.Itoa(DefaultPort))
	}
	return net.ResolveTCPAddr("tcp", c.Address)
}
