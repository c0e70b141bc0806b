// Package ws is the websocket adapter: one duplex connection per
// browser tab carries media chunks (binary frames), room control, chat
// and WebRTC signaling (JSON text frames).
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/streamloop/streamloop/internal/domain"
	"github.com/streamloop/streamloop/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Relay      *relay.Relay
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(r *relay.Relay, readLimit int64, pingPeriod time.Duration) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Controller{Relay: r, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

// HandleWS upgrades the request and runs the session until the socket
// closes. The session id is minted per connection: two tabs of one
// browser share a client token but never a session. The role comes
// from the query string and defaults to viewer.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	sid := domain.SessionID(uuid.NewString())
	role := domain.RoleViewer
	if c.Query("role") == string(domain.RoleBroadcaster) {
		role = domain.RoleBroadcaster
	}
	log.Info().Str("module", "ws").Str("sid", string(sid)).Str("client", c.GetString("client_token")).Str("role", string(role)).Msg("new WS connection")

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		sock.SetReadLimit(ctl.ReadLimit)
	}

	conn := newConn(sock)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Relay.Connect(sid, role, conn, cancel)

	// ReadMessage only returns when the socket dies, so cancellation
	// (server shutdown, registry eviction) must close it to unblock
	// the read loop.
	go func() {
		<-ctx.Done()
		_ = sock.Close()
	}()

	go ctl.writePump(ctx, conn)
	ctl.readPump(ctx, sid, conn)

	// readPump has returned: the client is gone or the server is
	// shutting down. Teardown is synchronous.
	cancel()
	ctl.Relay.Disconnect(sid)
	conn.Close()
}
