package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// connection is a single client socket. It belongs to at most one room,
// established during the authentication handshake.
type connection struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	hub  *Hub

	room      string
	closeOnce sync.Once
}

// run drives the connection: authenticate within the deadline, join the
// recipient's room, then pump frames until the transport fails.
func (c *connection) run(ctx context.Context) {
	defer c.close()

	room, err := c.authenticate(ctx)
	if err != nil {
		c.hub.logger.Debug("websocket authentication failed", zap.Error(err))
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(time.Second),
		)
		return
	}

	c.room = room
	c.hub.join(room, c)
	defer c.hub.leave(room, c)

	go c.writePump()
	c.readPump()
}

// authenticate waits for the client's authenticate frame and verifies it.
// The handshake has a hard deadline; an unauthenticated connection is
// never joined to any room.
func (c *connection) authenticate(ctx context.Context) (string, error) {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.hub.config.AuthTimeout)); err != nil {
		return "", err
	}

	var env Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		return "", err
	}
	if env.Event != eventAuthenticate {
		return "", errUnexpectedFrame(env.Event)
	}

	var req AuthRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return "", err
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		return "", err
	}

	if err := c.hub.auth(ctx, recipientID, req.RecipientKind, req.Token); err != nil {
		return "", err
	}

	ack, _ := json.Marshal(Envelope{Event: eventAuthenticated})
	if err := c.ws.WriteMessage(websocket.TextMessage, ack); err != nil {
		return "", err
	}

	return RoomKey(recipientID), nil
}

// readPump consumes inbound frames. Clients have nothing meaningful to
// say after authenticating; the read loop exists to process control
// frames and detect disconnects.
func (c *connection) readPump() {
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive
// with periodic pings.
func (c *connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// close tears the connection down. The done channel, not the send
// channel, signals the write pump: emitters still hold send and closing
// it under them would panic.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

type errUnexpectedFrame string

func (e errUnexpectedFrame) Error() string {
	return "expected authenticate frame, got: " + string(e)
}
