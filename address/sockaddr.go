/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

//go:build linux

package address

import (
	"net"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"
)

// Sockaddr resolves a tcp host:port into a socket address and its domain.
func Sockaddr(address string) (unix.Sockaddr, int, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, 0, errors.Wrap(err, ErrResolveTCPAddress)
	}

	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if len(addr.Zone) > 0 {
		if ifi, e := net.InterfaceByName(addr.Zone); e == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa, unix.AF_INET6, nil
}

func FromSockaddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append(net.IP{}, v.Addr[:]...), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append(net.IP{}, v.Addr[:]...), Port: v.Port}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Net: "unix", Name: v.Name}
	}
	return nil
}
