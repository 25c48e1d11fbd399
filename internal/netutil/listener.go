// Package netutil bounds how many connections a replica serves at once and
// how long any single read or write on them may block.
package netutil

import (
	"errors"
	"net"
	"sync"
	"time"
)

type limitedConn struct {
	net.Conn
	releaseOnce sync.Once
	release     func()

	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *limitedConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *limitedConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.releaseOnce.Do(c.release)
	return err
}

type limitListener struct {
	net.Listener
	sem          chan struct{}
	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewLimitListener returns a Listener that keeps at most n accepted
// connections open at a time; Accept blocks while the limit is reached.
// Non-positive timeouts disable the corresponding deadline.
func NewLimitListener(l net.Listener, n int, readTimeout, writeTimeout time.Duration) net.Listener {
	return &limitListener{
		Listener:     l,
		sem:          make(chan struct{}, n),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (l *limitListener) acquire() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	case <-l.done:
		return false
	}
}

func (l *limitListener) release() { <-l.sem }

func (l *limitListener) Accept() (net.Conn, error) {
	if !l.acquire() {
		return nil, net.ErrClosed
	}
	c, err := l.Listener.Accept()
	if err != nil {
		l.release()
		return nil, err
	}
	return &limitedConn{
		Conn:         c,
		release:      l.release,
		readTimeout:  l.readTimeout,
		writeTimeout: l.writeTimeout,
	}, nil
}

func (l *limitListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return l.Listener.Close()
}

// IsClosedConnectionError returns true if err comes from using a closed
// listener or connection.
func IsClosedConnectionError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
