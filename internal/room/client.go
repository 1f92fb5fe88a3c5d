package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Deadline for a single websocket write.
const writeWait = 10 * time.Second

// Client is one websocket participant. Its identity lives for the
// duration of the connection; reconnecting yields a fresh id.
type Client struct {
	UserID string
	Name   string
	Color  string

	room   *Room
	seq    int
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, name string, sendBuffer int, logger *zap.Logger) *Client {
	id := uuid.NewString()
	if name == "" {
		name = "guest-" + id[:8]
	}
	return &Client{
		UserID: id,
		Name:   name,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With(zap.String("client", id)),
	}
}

func (c *Client) info() memberInfo {
	return memberInfo{ID: c.UserID, Name: c.Name, Color: c.Color}
}

// enqueue hands a frame to the write pump without blocking the room.
// A client whose buffer is full has fallen too far behind to ever
// catch up frame by frame; severing its connection lets the pumps
// tear it down, and rejoining delivers a fresh snapshot.
//
// Only called while holding the room mutex, which also guards the
// close of c.send in Leave.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping client")
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// readPump pulls messages off the websocket and feeds them to the
// room. It owns room membership: when it returns, the client leaves.
func (c *Client) readPump() {
	defer func() {
		c.room.Leave(c)
		c.conn.Close()
	}()

	pongWait := 2 * c.room.opts.PingInterval
	c.conn.SetReadLimit(c.room.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		msg, err := decodeClientMessage(data)
		if err != nil {
			// A malformed frame is the client's problem, not the room's.
			c.logger.Warn("dropping malformed message", zap.Error(err))
			continue
		}
		c.room.process(c, msg)
	}
}

// writePump drains the send channel onto the websocket and keeps the
// connection alive with pings. It exits when Leave closes the channel
// or a write fails; closing the connection then unblocks readPump.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.room.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
