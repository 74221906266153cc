package api

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/comigor/taxassist-go/internal/logger"
	"github.com/comigor/taxassist-go/internal/panel"
)

// Stream upgrades to a websocket and pushes a state Update followed by
// every panel Update as JSON text frames. Client frames are ignored.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	p, ok := h.panel(w, r)
	if !ok {
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		logger.L.Error("failed to accept websocket", "panel_id", p.ID, "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			logger.L.Debug("failed to close websocket", "panel_id", p.ID, "error", closeErr)
		}
	}()

	ctx := ws.CloseRead(r.Context())
	updates, subID := p.Subscribe(ctx)
	logger.L.Info("panel stream connected", "panel_id", p.ID, "sub_id", subID)

	state := p.State()
	if err := write(ctx, ws, panel.Update{Kind: panel.UpdateState, State: &state}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			logger.L.Info("panel stream disconnected", "panel_id", p.ID, "sub_id", subID)
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := write(ctx, ws, u); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, ws *websocket.Conn, v any) error {
	if err := wsjson.Write(ctx, ws, v); err != nil {
		logger.L.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}
