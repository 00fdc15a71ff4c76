package face

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ccnhub/ccnd/internal/log"
)

// WebSocketTransport is an additional LINK-framed face transport for
// browser/JS CCN peers (SPEC_FULL.md s4.6 "Face I/O" addendum), grounded
// on teacher's fw/face/web-socket-transport.go.
type WebSocketTransport struct {
	transportBase
	conn *websocket.Conn
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// UpgradeWebSocket upgrades an HTTP request to a WebSocket face.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request, mtu int) (*WebSocketTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	t := &WebSocketTransport{conn: conn}
	t.mtu = mtu
	t.running = true
	return t, nil
}

func (t *WebSocketTransport) String() string {
	return fmt.Sprintf("websocket-transport(remote=%s)", t.conn.RemoteAddr())
}

func (t *WebSocketTransport) SendFrame(frame []byte) error {
	if !t.running {
		return nil
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		log.Default().Warn(t, "unable to send on websocket - face DOWN", "err", err)
		_ = t.Close()
		return err
	}
	t.nOutBytes += uint64(len(frame))
	return nil
}

func (t *WebSocketTransport) RunReceive(onFrame func([]byte)) {
	defer t.Close()
	for {
		typ, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		t.nInBytes += uint64(len(data))
		onFrame(data)
	}
}

func (t *WebSocketTransport) Close() error {
	if t.running {
		t.running = false
		return t.conn.Close()
	}
	return nil
}
