// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport moves raw datagrams between a fleet node and the
// shared broadcast medium without interpreting them.
//
// [Conn] is the contract the leader and follower are written against:
// Send enqueues one datagram for transmission and Receive polls the
// inbound queue with a short timeout. Two implementations exist:
//
//   - [UDP] binds a real socket in broadcast, multicast, or unicast
//     mode and runs two independent pumps under an errgroup. The send
//     pump drains the outbound queue onto the socket (optionally
//     paced by a token bucket); the receive pump reads with a short
//     deadline so it notices Stop within one poll interval, and
//     pushes each datagram, its sender, and its arrival time onto the
//     inbound queue. The pumps share nothing but the two queues.
//
//   - [MemoryNetwork] is an in-process broadcast medium for tests.
//     Every endpoint sees every datagram, including its own, exactly
//     as on a broadcast segment. Delivery delay and a drop filter
//     model an unreliable network.
//
// Both queues are bounded. A full outbound queue fails Send with
// [ErrQueueFull]; a full inbound queue drops the newest datagram,
// which the protocol tolerates because UDP delivery is never
// guaranteed anyway.
//
// Receive timeouts are measured on the wall clock: they bound real
// socket waits. Arrival timestamps come from the injected clock so
// that round-trip arithmetic agrees with the rest of the node.
package transport
