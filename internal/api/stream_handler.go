package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gsarma/judgerun/internal/code"
	"github.com/gsarma/judgerun/internal/tenant"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamReadTimeout  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// Callers authenticate with a bearer key, not cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is one frame sent to a /code/:provider/stream client.
type streamMessage struct {
	Type    string       `json:"type"`
	Token   string       `json:"token,omitempty"`
	Attempt int          `json:"attempt,omitempty"`
	Status  *code.Status `json:"status,omitempty"`
	Result  *code.Result `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// StreamCode runs one submission over a WebSocket. The client sends the
// execute request as its first message; the server answers with a
// "submitted" frame, a "status" frame per poll and finally a "result" or
// "error" frame, then closes the connection.
func (h *Handler) StreamCode(c *gin.Context) {
	t := tenant.FromContext(c)
	client, err := h.buildCodeProvider(c.Request.Context(), t, c.Param("provider"))
	if err != nil {
		h.writeCodeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger().With(zap.String("tenant_id", t.ID.String()), zap.Stringer("remote", conn.RemoteAddr()))

	var req executeRequest
	_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		h.sendFrame(conn, log, streamMessage{Type: "error", Error: "invalid request: " + err.Error()})
		return
	}
	if req.SourceCode == "" || req.LanguageID == 0 {
		h.sendFrame(conn, log, streamMessage{Type: "error", Error: "source_code and language_id are required"})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// Hijacked connections are not watched by net/http, so a read loop is
	// what notices the client leaving.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	token, err := client.Submit(ctx, req.jobSpec())
	if err != nil {
		h.sendFrame(conn, log, streamMessage{Type: "error", Error: err.Error()})
		return
	}
	h.sendFrame(conn, log, streamMessage{Type: "submitted", Token: token})

	result, err := client.Poll(ctx, token, func(attempt int, res *code.Result) {
		status := res.Status
		h.sendFrame(conn, log, streamMessage{Type: "status", Token: token, Attempt: attempt, Status: &status})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("stream client went away", zap.String("token", token))
			return
		}
		h.sendFrame(conn, log, streamMessage{Type: "error", Error: err.Error(), Token: token})
		return
	}
	h.sendFrame(conn, log, streamMessage{Type: "result", Token: token, Result: result})

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteTimeout))
}

func (h *Handler) sendFrame(conn *websocket.Conn, log *zap.Logger, msg streamMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn("websocket write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}
