package netutil

import (
	"net"
	"testing"
	"time"

	"github.com/coreos/etcd/pkg/testutil"
)

func TestLimitListenerBlocksAtLimit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	testutil.AssertNil(t, err)
	l := NewLimitListener(ln, 1, 0, 0)
	defer l.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	c1, err := net.Dial("tcp", ln.Addr().String())
	testutil.AssertNil(t, err)
	defer c1.Close()
	c2, err := net.Dial("tcp", ln.Addr().String())
	testutil.AssertNil(t, err)
	defer c2.Close()

	first := <-accepted
	select {
	case <-accepted:
		t.Fatal("second connection accepted while limit reached")
	case <-time.After(100 * time.Millisecond):
	}

	first.Close()
	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(3 * time.Second):
		t.Fatal("second connection not accepted after release")
	}
}

func TestLimitListenerReadTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	testutil.AssertNil(t, err)
	l := NewLimitListener(ln, 4, 50*time.Millisecond, 0)
	defer l.Close()

	c, err := net.Dial("tcp", ln.Addr().String())
	testutil.AssertNil(t, err)
	defer c.Close()

	sc, err := l.Accept()
	testutil.AssertNil(t, err)
	defer sc.Close()

	_, err = sc.Read(make([]byte, 1))
	ne, ok := err.(net.Error)
	testutil.AssertTrue(t, ok && ne.Timeout())
}

func TestCloseUnblocksAccept(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	testutil.AssertNil(t, err)
	l := NewLimitListener(ln, 1, 0, 0)

	errc := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	l.Close()

	select {
	case err := <-errc:
		testutil.AssertTrue(t, IsClosedConnectionError(err))
	case <-time.After(3 * time.Second):
		t.Fatal("Accept did not return after Close")
	}
}
