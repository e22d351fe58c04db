package transport

import (
	"errors"
	"net"
	"sync"
	"time"
)

// trackedConn is the encrypted stream handed to the session layer. It reports
// failed reads and writes, and its own closure, back to the owning transport
// under the generation it was created for.
type trackedConn struct {
	net.Conn

	owner *Transport
	gen   uint64

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *trackedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if err != nil && !isTimeout(err) {
		c.owner.connLost(c.gen, err)
	}
	return n, err
}

func (c *trackedConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	n, err := c.Conn.Write(b)
	c.writeMu.Unlock()

	if err != nil && !isTimeout(err) {
		c.owner.connLost(c.gen, err)
	}
	return n, err
}

func (c *trackedConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Conn.Close()
		c.owner.connClosed(c.gen)
	})
	return err
}

// flush waits up to d for a write in progress.
func (c *trackedConn) flush(d time.Duration) {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(d))
	c.writeMu.Lock()
	c.writeMu.Unlock() //nolint:staticcheck // empty critical section waits for the writer
	_ = c.Conn.SetWriteDeadline(time.Time{})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
