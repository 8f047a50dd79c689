package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single WebSocket write so one stalled client
// cannot wedge its session goroutine.
const writeTimeout = 10 * time.Second

// wsConn adapts a coder/websocket connection to the engine's outbound
// interface. Raw streamed text and JSON frames both travel as text
// messages; the client tells them apart by attempting a JSON parse.
type wsConn struct {
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (w *wsConn) SendText(ctx context.Context, text string) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return w.conn.Write(wctx, websocket.MessageText, []byte(text))
}

func (w *wsConn) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return w.conn.Write(wctx, websocket.MessageText, data)
}
