// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package reach monitors network reachability by periodically dialing a
// well-known host.
package reach

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// A Status is the reachability status of the network.
type Status int

const (
	// Unknown means reachability has not been determined.
	Unknown Status = iota
	// NotReachable means the probe host could not be reached.
	NotReachable
	// Reachable means the probe host was reached.
	Reachable
)

var statusNames = []string{"unknown", "not_reachable", "reachable"}

// String returns the snake_case name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

const (
	// DefaultHost is the probe address used when Prober.Host is empty.
	DefaultHost = "www.google.com:443"
	// DefaultInterval is the polling interval used when
	// Prober.Interval is zero.
	DefaultInterval = 5 * time.Second
	// DefaultTimeout is the dial timeout used when Prober.Timeout is
	// zero.
	DefaultTimeout = 2 * time.Second
)

// A DialFunc dials a network address.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober reports reachability by dialing Host every Interval while it
// is listening. Its zero value probes DefaultHost over TCP.
//
// StartListening probes once before returning, so Reachable is
// meaningful as soon as listening starts. The listener is called from
// the polling goroutine whenever the status changes.
type Prober struct {
	// Host is the host:port to dial.
	Host string
	// Network is the dial network. If empty, "tcp" is used.
	Network string
	// Interval is the polling interval.
	Interval time.Duration
	// Timeout is the dial timeout.
	Timeout time.Duration
	// Dial optionally replaces the net.Dialer used to probe.
	Dial DialFunc
	// Logger receives status change logs. If nil, slog.Default() is
	// used.
	Logger *slog.Logger

	lock      sync.Mutex
	status    Status
	listener  func(Status)
	cancel    context.CancelFunc
	listening bool
}

// Status returns the last observed status.
func (p *Prober) Status() Status {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.status
}

// Reachable reports whether the last probe reached the host.
func (p *Prober) Reachable() bool {
	return p.Status() == Reachable
}

// Listening reports whether the prober is polling.
func (p *Prober) Listening() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.listening
}

// SetListener sets the function called on status changes. A nil
// function removes the listener.
func (p *Prober) SetListener(f func(Status)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.listener = f
}

// StartListening probes once and then starts polling. It does nothing
// if the prober is already listening.
func (p *Prober) StartListening() {
	p.lock.Lock()
	if p.listening {
		p.lock.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.listening = true
	p.lock.Unlock()

	p.probe(ctx)
	go p.poll(ctx)
}

// StopListening stops polling. It does not wait for an in-progress
// probe, so it may be called from the listener. The last observed
// status is kept.
func (p *Prober) StopListening() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.listening {
		return
	}
	p.cancel()
	p.listening = false
	p.cancel = nil
}

func (p *Prober) poll(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status := Reachable
	conn, err := p.dial()(dctx, p.network(), p.host())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		status = NotReachable
	} else {
		_ = conn.Close()
	}
	p.set(status, err)
}

func (p *Prober) set(status Status, err error) {
	p.lock.Lock()
	old := p.status
	p.status = status
	listener := p.listener
	p.lock.Unlock()
	if old == status {
		return
	}
	attrs := []any{slog.String("host", p.host()), slog.String("status", status.String())}
	if err != nil {
		attrs = append(attrs, slog.String("reason", err.Error()))
	}
	p.logger().Info("reachability changed", attrs...)
	if listener != nil {
		listener(status)
	}
}

func (p *Prober) dial() DialFunc {
	if p.Dial != nil {
		return p.Dial
	}
	var d net.Dialer
	return d.DialContext
}

func (p *Prober) host() string {
	if p.Host == "" {
		return DefaultHost
	}
	return p.Host
}

func (p *Prober) network() string {
	if p.Network == "" {
		return "tcp"
	}
	return p.Network
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
