// Package portalloc hands out local TCP ports to backend sessions.
package portalloc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ErrExhausted is returned when every port in the range is reserved or busy.
var ErrExhausted = errors.New("no free port in range")

// Allocator reserves ports from [Min, Max]. A reserved port is never handed
// out again until released, even if nothing listens on it yet.
type Allocator struct {
	min, max int
	host     string

	mu       sync.Mutex
	next     int
	reserved map[int]struct{}

	// probe reports whether a port can be bound. Replaced in tests.
	probe func(host string, port int) bool
}

// New creates an allocator for the inclusive range [min, max] on host.
func New(host string, min, max int) (*Allocator, error) {
	if min <= 0 || max > 65535 || min > max {
		return nil, fmt.Errorf("invalid port range %d-%d", min, max)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return &Allocator{
		min:      min,
		max:      max,
		host:     host,
		next:     min,
		reserved: make(map[int]struct{}),
		probe:    listenProbe,
	}, nil
}

func listenProbe(host string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Reserve returns a free port and marks it reserved. Ports are scanned
// round-robin so a released port is not immediately reused.
func (a *Allocator) Reserve() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	size := a.max - a.min + 1
	for i := 0; i < size; i++ {
		port := a.next
		a.next++
		if a.next > a.max {
			a.next = a.min
		}
		if _, taken := a.reserved[port]; taken {
			continue
		}
		if !a.probe(a.host, port) {
			continue
		}
		a.reserved[port] = struct{}{}
		return port, nil
	}
	return 0, fmt.Errorf("%w %d-%d", ErrExhausted, a.min, a.max)
}

// Claim marks a specific port reserved, used when adopting a port recorded
// by an earlier process. It reports false if the port is already reserved or
// out of range.
func (a *Allocator) Claim(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if port < a.min || port > a.max {
		return false
	}
	if _, taken := a.reserved[port]; taken {
		return false
	}
	a.reserved[port] = struct{}{}
	return true
}

// Release returns port to the pool. Releasing an unreserved port is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, port)
}

// InUse returns the number of reserved ports.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reserved)
}
