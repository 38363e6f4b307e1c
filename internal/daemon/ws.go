package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/crewdesk/relay/internal/config"
	"github.com/crewdesk/relay/internal/hub"
	"github.com/crewdesk/relay/internal/identity"
	"github.com/crewdesk/relay/internal/metrics"
	"github.com/crewdesk/relay/internal/router"
	"github.com/crewdesk/relay/protocol"
)

// wsHandler owns the websocket endpoint: handshake, session lifetime and
// the per-connection read loop.
type wsHandler struct {
	cfg      *config.Config
	verifier identity.Verifier
	router   *router.Router
	logger   *zap.Logger
}

// rejectReason maps a handshake failure to its wire reason code.
func rejectReason(err error) protocol.Reason {
	switch {
	case errors.Is(err, identity.ErrNoCredential):
		return protocol.ReasonNoCredential
	case errors.Is(err, identity.ErrCredentialExpired):
		return protocol.ReasonCredentialExpired
	case errors.Is(err, identity.ErrPrincipalInactive):
		return protocol.ReasonPrincipalInactive
	default:
		return protocol.ReasonCredentialInvalid
	}
}

// serve runs for the lifetime of one websocket connection.
func (h *wsHandler) serve(conn *websocket.Conn) {
	credential := conn.Query("token")
	if credential == "" {
		credential = conn.Headers("Authorization")
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.HandshakeTimeout.Duration)
	principal, err := h.verifier.Verify(ctx, credential)
	cancel()
	if err != nil {
		reason := rejectReason(err)
		metrics.HandshakeRejections.WithLabelValues(string(reason)).Inc()
		h.logger.Info("handshake rejected", zap.String("reason", string(reason)))
		// The rejection reason goes out before the close so the client's
		// resilience controller can decide whether a retry is worthwhile.
		_ = conn.WriteMessage(websocket.TextMessage,
			protocol.MustEncode(protocol.KindError, protocol.ErrorEvent{
				Reason:  reason,
				Message: "handshake failed",
			}))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(reason)))
		_ = conn.Close()
		return
	}

	sess := hub.NewSession(principal, conn, h.cfg.SendBuffer)
	if err := h.router.Connect(sess); err != nil {
		h.logger.Error("session setup failed", zap.String("user", principal.ID), zap.Error(err))
		sess.Close()
		return
	}
	defer h.router.Disconnect(sess)

	go sess.WritePump()

	// Liveness: clients ping on an interval; any traffic extends the read
	// deadline, and a silent transport times out into a disconnect.
	deadline := h.cfg.HeartbeatTimeout.Duration
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPingHandler(func(appData string) error {
		sess.Touch()
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sess.Touch()
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		if mt != websocket.TextMessage {
			continue
		}
		// One event is handled to completion before the next frame from
		// this connection is read.
		h.router.HandleFrame(sess, raw)
	}
}
