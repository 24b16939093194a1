package handlers

import (
	"log"
	"net/http"

	"github.com/coder/websocket"
)

// WS upgrades the connection and hands it to the realtime relay, which
// serves it until disconnect.
func (a *API) WS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ws] failed to accept websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	a.Relay.HandleConn(r.Context(), conn)
}
