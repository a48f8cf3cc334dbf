// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "github.com/antenny/fleet/lib/config"

// ConfigFrom converts the network section of a daemon config. A zero
// listen port binds the destination port, which is how fleet nodes
// hear each other's broadcasts.
func ConfigFrom(network config.NetworkConfig) Config {
	listenPort := network.ListenPort
	if listenPort == 0 {
		listenPort = network.Port
	}
	return Config{
		Mode:          Mode(network.Mode),
		Address:       network.Address,
		Port:          network.Port,
		ListenAddress: network.ListenAddress,
		ListenPort:    listenPort,
		Interface:     network.Interface,
		Loopback:      network.Loopback,
		TTL:           network.TTL,
		PollInterval:  network.PollInterval,
		QueueSize:     network.QueueSize,
		SendRate:      network.SendRate,
		SendBurst:     network.SendBurst,
	}
}
