package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/praxis/internal/announce"
	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

const (
	streamBuffer       = 16
	streamWriteTimeout = 5 * time.Second
)

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	latest := []announce.Announcement{}
	if s.cfg.Feed != nil {
		latest = append(latest, s.cfg.Feed.Latest()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcements": latest})
}

// handleAnnouncementStream pushes every new announcement notification to a
// websocket client until either side goes away.
func (s *Server) handleAnnouncementStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hub == nil {
		writeError(w, apperr.NotFound("stream", "announcements"))
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	updates, cancel := s.cfg.Hub.Subscribe(streamBuffer)
	defer cancel()

	// Clients only listen; CloseRead cancels ctx once they disconnect.
	ctx := conn.CloseRead(r.Context())
	slog.Debug("announcement stream opened", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case n, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, n)
			wcancel()
			if err != nil {
				slog.Debug("announcement stream closed", "error", err)
				return
			}
		}
	}
}
