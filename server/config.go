/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"net"
	"strconv"
	"strings"
	"time"

	"go.osspkg.com/nioecho/address"
	"go.osspkg.com/nioecho/internal"
)

const (
	DefaultPort   = 8080
	DefaultSuffix = "，你好，你的请求已处理完成"
)

type (
	Config struct {
		Address       string        `yaml:"address"`
		Suffix        string        `yaml:"suffix,omitempty"`
		BufferSize    int           `yaml:"buffer_size,omitempty"`
		Backlog       int           `yaml:"backlog,omitempty"`
		CountEvents   int           `yaml:"count_events,omitempty"`
		SelectTimeout time.Duration `yaml:"select_timeout,omitempty"`
	}
)

func (c *Config) setDefaults() {
	c.Address = listenAddress(c.Address)
	if len(c.Suffix) == 0 {
		c.Suffix = DefaultSuffix
	}
	c.BufferSize = internal.NotZero(c.BufferSize, internal.DefaultWindowSize)
}

// listenAddress fills in all interfaces and DefaultPort when address omits them.
func listenAddress(addr string) string {
	if len(addr) == 0 {
		return address.ListenAddr(DefaultPort)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = strings.Trim(addr, "[]"), ""
	}
	if len(port) == 0 {
		port = strconv.Itoa(DefaultPort)
	}
	return address.ResolveIPPort(net.JoinHostPort(host, port))
}
