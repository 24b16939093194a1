package relay

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// sendQueueSize bounds the per-connection outbound queue. A connection that
// cannot drain this many pending events is dropped rather than allowed to
// stall broadcast for the rest of the room.
const sendQueueSize = 64

// writeTimeout caps a single websocket write.
const writeTimeout = 10 * time.Second

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue hands raw to the write pump. False means the queue is full or the
// client is closed; the caller decides whether that drops the client.
func (c *client) enqueue(raw []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

// writePump drains the send queue onto the websocket. One pump per client,
// so writes on a connection never interleave.
func (c *client) writePump() {
	for {
		select {
		case raw := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				c.close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close(code, reason)
	})
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
