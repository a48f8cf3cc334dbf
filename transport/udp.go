// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/antenny/fleet/lib/clock"
	"github.com/antenny/fleet/lib/netutil"
	"github.com/antenny/fleet/lib/wire"
)

// Mode selects how datagrams are addressed.
type Mode string

const (
	// ModeBroadcast sends to a broadcast address with SO_BROADCAST.
	ModeBroadcast Mode = "broadcast"

	// ModeMulticast joins a group and sends to it.
	ModeMulticast Mode = "multicast"

	// ModeUnicast sends to a single peer. Used for point-to-point
	// bench setups and tests on hosts without broadcast routes.
	ModeUnicast Mode = "unicast"
)

const (
	DefaultPort             = 31337
	DefaultBroadcastAddress = "255.255.255.255"
	DefaultMulticastGroup   = "224.11.11.11"
	DefaultPollInterval     = 10 * time.Millisecond
	DefaultQueueSize        = 256
	DefaultTTL              = 1
)

// Config describes one UDP endpoint.
type Config struct {
	Mode Mode

	// Address is the destination: a broadcast address, a multicast
	// group, or a unicast peer, depending on Mode.
	Address string

	// Port is the destination port.
	Port int

	// ListenAddress is the local bind address. Empty binds all
	// interfaces.
	ListenAddress string

	// ListenPort is the local bind port. Zero picks an ephemeral port;
	// fleet nodes normally listen on the same port they send to.
	ListenPort int

	// Interface names the multicast interface. Empty lets the kernel
	// choose.
	Interface string

	// Loopback delivers our own multicast sends back to us.
	Loopback bool

	// TTL is the multicast hop limit.
	TTL int

	// PollInterval bounds each socket read, and so how long Stop
	// waits for the receive pump.
	PollInterval time.Duration

	// QueueSize bounds each of the outbound and inbound queues.
	QueueSize int

	// SendRate limits datagrams per second on the send pump. Zero
	// disables the limit. SendBurst is the bucket depth (minimum 1).
	SendRate  float64
	SendBurst int
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeBroadcast
	}
	if c.Address == "" {
		switch c.Mode {
		case ModeBroadcast:
			c.Address = DefaultBroadcastAddress
		case ModeMulticast:
			c.Address = DefaultMulticastGroup
		}
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.SendBurst < 1 {
		c.SendBurst = 1
	}
	return c
}

// Validate reports configuration that cannot produce a working socket.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeBroadcast, ModeMulticast, ModeUnicast:
	default:
		return fmt.Errorf("unknown transport mode %q (want broadcast, multicast, or unicast)", c.Mode)
	}
	if c.Address == "" {
		return fmt.Errorf("%s mode requires a destination address", c.Mode)
	}
	if c.Mode == ModeMulticast {
		ip := net.ParseIP(c.Address)
		if ip == nil || !ip.IsMulticast() || ip.To4() == nil {
			return fmt.Errorf("multicast group %q is not an IPv4 multicast address", c.Address)
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.ListenPort)
	}
	if c.TTL < 0 || c.TTL > 255 {
		return fmt.Errorf("multicast TTL %d out of range", c.TTL)
	}
	if c.SendRate < 0 {
		return fmt.Errorf("send rate %v must not be negative", c.SendRate)
	}
	return nil
}

// UDP is a Conn over a real UDP socket.
type UDP struct {
	config  Config
	clock   clock.Clock
	logger  *slog.Logger
	limiter *rate.Limiter

	outbound chan []byte
	inbound  chan Datagram

	// stopped is closed by Stop; Send and Receive observe it.
	stopped  chan struct{}
	stopOnce sync.Once
	stopErr  error

	mu          sync.Mutex
	started     bool
	conn        *net.UDPConn
	destination *net.UDPAddr
	cancel      context.CancelFunc
	group       *errgroup.Group

	droppedInbound atomic.Uint64
}

var _ Conn = (*UDP)(nil)

// NewUDP validates config and returns an endpoint ready to Start.
func NewUDP(config Config, clk clock.Clock, logger *slog.Logger) (*UDP, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}

	endpoint := &UDP{
		config:   config,
		clock:    clk,
		logger:   logger.With("transport", string(config.Mode)),
		outbound: make(chan []byte, config.QueueSize),
		inbound:  make(chan Datagram, config.QueueSize),
		stopped:  make(chan struct{}),
	}
	if config.SendRate > 0 {
		endpoint.limiter = rate.NewLimiter(rate.Limit(config.SendRate), config.SendBurst)
	}
	return endpoint, nil
}

// Start binds the socket and launches both pumps. The pumps run until
// Stop is called or ctx is cancelled.
func (u *UDP) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	select {
	case <-u.stopped:
		return ErrStopped
	default:
	}
	if u.started {
		return errors.New("transport already started")
	}

	destination, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(u.config.Address, strconv.Itoa(u.config.Port)))
	if err != nil {
		return fmt.Errorf("resolving destination %s:%d: %w", u.config.Address, u.config.Port, err)
	}

	listenConfig := net.ListenConfig{Control: socketControl(u.config.Mode)}
	bindAddress := net.JoinHostPort(u.config.ListenAddress, strconv.Itoa(u.config.ListenPort))
	packetConn, err := listenConfig.ListenPacket(ctx, "udp4", bindAddress)
	if err != nil {
		return fmt.Errorf("binding %s: %w", bindAddress, err)
	}
	conn := packetConn.(*net.UDPConn)

	if u.config.Mode == ModeMulticast {
		if err := joinMulticastGroup(conn, destination.IP, u.config); err != nil {
			conn.Close()
			return err
		}
	}

	pumpContext, cancel := context.WithCancel(ctx)
	group, groupContext := errgroup.WithContext(pumpContext)
	group.Go(func() error { return u.sendPump(groupContext, conn, destination) })
	group.Go(func() error { return u.receivePump(groupContext, conn) })

	u.started = true
	u.conn = conn
	u.destination = destination
	u.cancel = cancel
	u.group = group

	u.logger.Info("transport started",
		"local", conn.LocalAddr().String(),
		"destination", destination.String(),
	)
	return nil
}

// Send enqueues a copy of data.
func (u *UDP) Send(data []byte) error {
	select {
	case <-u.stopped:
		return ErrStopped
	default:
	}
	if len(data) > wire.MaxDatagramSize {
		return fmt.Errorf("%w: %d bytes", wire.ErrFrameTooLarge, len(data))
	}
	select {
	case u.outbound <- bytes.Clone(data):
		return nil
	default:
		return ErrQueueFull
	}
}

// Receive implements Conn.
func (u *UDP) Receive(timeout time.Duration) (Datagram, bool) {
	return receiveFrom(u.inbound, u.stopped, timeout)
}

// Done implements Conn.
func (u *UDP) Done() <-chan struct{} { return u.stopped }

// Stop closes the socket and waits for both pumps to exit. It is safe
// to call more than once and from any goroutine; every call returns the
// first call's result.
func (u *UDP) Stop() error {
	u.stopOnce.Do(func() {
		close(u.stopped)

		u.mu.Lock()
		started, conn, cancel, group := u.started, u.conn, u.cancel, u.group
		u.mu.Unlock()
		if !started {
			return
		}

		cancel()
		if err := conn.Close(); err != nil && !netutil.IsExpectedCloseError(err) {
			u.stopErr = fmt.Errorf("closing socket: %w", err)
		}
		if err := group.Wait(); err != nil && u.stopErr == nil {
			u.stopErr = err
		}
		u.logger.Info("transport stopped", "dropped_inbound", u.droppedInbound.Load())
	})
	return u.stopErr
}

// LocalAddr returns the bound address, or nil before Start.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// DroppedInbound counts datagrams discarded because the inbound queue
// was full.
func (u *UDP) DroppedInbound() uint64 { return u.droppedInbound.Load() }

func (u *UDP) sendPump(ctx context.Context, conn *net.UDPConn, destination *net.UDPAddr) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-u.outbound:
			if u.limiter != nil {
				if err := u.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			if _, err := conn.WriteToUDP(data, destination); err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				u.logger.Warn("sending datagram failed", "destination", destination.String(), "error", err)
			}
		}
	}
}

func (u *UDP) receivePump(ctx context.Context, conn *net.UDPConn) error {
	// One byte over the datagram limit so oversized datagrams arrive
	// intact enough for the decoder to reject them.
	buffer := make([]byte, wire.MaxDatagramSize+1)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(u.config.PollInterval)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("setting read deadline: %w", err)
		}
		length, source, err := conn.ReadFromUDP(buffer)
		if err != nil {
			switch {
			case netutil.IsTimeout(err):
			case errors.Is(err, net.ErrClosed):
				return nil
			case netutil.IsExpectedCloseError(err):
				u.logger.Debug("ignoring peer error", "error", err)
			default:
				u.logger.Warn("reading datagram failed", "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(u.config.PollInterval):
				}
			}
			continue
		}

		datagram := Datagram{
			Data:       bytes.Clone(buffer[:length]),
			Source:     source,
			ReceivedAt: u.clock.Now(),
		}
		select {
		case u.inbound <- datagram:
		default:
			u.droppedInbound.Add(1)
			u.logger.Debug("inbound queue full, dropping datagram", "source", source.String())
		}
	}
}
