package hostadapter

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"eventgate/internal/wsengine"
	"eventgate/route"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(payload []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// NewWebSocketHandler upgrades incoming requests and drives the connect/
// message/disconnect lifecycle against engine (spec.md §4.F).
func NewWebSocketHandler(engine *wsengine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("hostadapter: websocket upgrade failed: %v", err)
			return
		}

		connectionID := uuid.NewString()
		conn := &wsConn{conn: raw}
		meta := &route.Meta{Cookies: parseCookies(r), Signal: r.Context()}

		if _, err := engine.Connect(r.Context(), connectionID, meta, conn); err != nil {
			log.Printf("hostadapter: websocket connect rejected for %s: %v", connectionID, err)
			raw.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			raw.Close()
			return
		}
		defer engine.Disconnect(connectionID)

		for {
			_, data, err := raw.ReadMessage()
			if err != nil {
				return
			}
			if err := engine.Message(r.Context(), connectionID, data, uuid.NewString()); err != nil {
				log.Printf("hostadapter: websocket message error on %s: %v", connectionID, err)
			}
		}
	}
}

func parseCookies(r *http.Request) map[string]string {
	out := map[string]string{}
	for _, c := range r.Cookies() {
		out[c.Name] = c.Value
	}
	return out
}
