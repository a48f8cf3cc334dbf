// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

type socketOption struct {
	name   string
	option int
}

// socketControl returns a net.ListenConfig Control function applying
// the options every fleet socket needs. Address and port reuse let a
// leader and followers share one host during bench testing; broadcast
// sends need SO_BROADCAST or the kernel rejects them with EACCES.
func socketControl(mode Mode) func(network, address string, raw syscall.RawConn) error {
	return func(network, address string, raw syscall.RawConn) error {
		var optionErr error
		err := raw.Control(func(fd uintptr) {
			options := []socketOption{
				{"SO_REUSEADDR", unix.SO_REUSEADDR},
				{"SO_REUSEPORT", unix.SO_REUSEPORT},
			}
			if mode == ModeBroadcast {
				options = append(options, socketOption{"SO_BROADCAST", unix.SO_BROADCAST})
			}
			for _, entry := range options {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, entry.option, 1); err != nil {
					optionErr = fmt.Errorf("setting %s on %s: %w", entry.name, address, err)
					return
				}
			}
		})
		if err != nil {
			return fmt.Errorf("accessing socket for %s: %w", address, err)
		}
		return optionErr
	}
}

// joinMulticastGroup requests membership of group on conn and applies
// the configured loopback and TTL. A nil interface lets the kernel pick
// one from the routing table.
func joinMulticastGroup(conn *net.UDPConn, group net.IP, config Config) error {
	packetConn := ipv4.NewPacketConn(conn)

	var iface *net.Interface
	if config.Interface != "" {
		found, err := net.InterfaceByName(config.Interface)
		if err != nil {
			return fmt.Errorf("looking up multicast interface %q: %w", config.Interface, err)
		}
		iface = found
	}

	if err := packetConn.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
		return fmt.Errorf("joining multicast group %s: %w", group, err)
	}
	if iface != nil {
		if err := packetConn.SetMulticastInterface(iface); err != nil {
			return fmt.Errorf("setting multicast interface %s: %w", iface.Name, err)
		}
	}
	if err := packetConn.SetMulticastLoopback(config.Loopback); err != nil {
		return fmt.Errorf("setting multicast loopback: %w", err)
	}
	if err := packetConn.SetMulticastTTL(config.TTL); err != nil {
		return fmt.Errorf("setting multicast TTL %d: %w", config.TTL, err)
	}
	return nil
}
