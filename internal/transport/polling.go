package transport

import (
	"sync"
	"time"
)

// PollingConn queues frames until the peer's next query.
type PollingConn struct {
	base
	out *outbox
	now func() time.Time

	readMu   sync.Mutex
	lastRead time.Time
}

// NewPollingConn returns a polling connection whose idle clock starts now.
// now may be nil for the wall clock.
func NewPollingConn(id string, kind Kind, now func() time.Time) *PollingConn {
	if now == nil {
		now = time.Now
	}
	return &PollingConn{
		base:     base{id: id, kind: kind},
		out:      newOutbox(),
		now:      now,
		lastRead: now(),
	}
}

func (c *PollingConn) Mode() string { return ModePolling }

func (c *PollingConn) Enqueue(frame []byte) error {
	return c.out.push(frame)
}

// Drain returns every queued frame and marks the connection as read.
func (c *PollingConn) Drain() [][]byte {
	c.readMu.Lock()
	c.lastRead = c.now()
	c.readMu.Unlock()

	frames := c.out.takeAll()
	if frames == nil {
		frames = [][]byte{}
	}
	return frames
}

func (c *PollingConn) LastRead() time.Time {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return c.lastRead
}

func (c *PollingConn) Close() {
	c.out.close()
}

func (c *PollingConn) Closed() bool {
	return c.out.isClosed()
}

func (c *PollingConn) Done() <-chan struct{} { return c.out.done }
