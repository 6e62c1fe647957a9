package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/p-n-ai/praxis/internal/auth"
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/platform/apperr"
	"github.com/p-n-ai/praxis/internal/session"
	"github.com/p-n-ai/praxis/internal/stats"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.cfg.Sessions.Get(r.PathValue("sid"))
		if err != nil {
			writeError(w, err)
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.cfg.Sessions.Create(r.Context(), strings.TrimSpace(req.DeviceID))
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := sess.View()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sess.ID(),
		"deviceId":  sess.DeviceID(),
		"view":      view,
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Sessions.Close(r.PathValue("sid")) {
		writeError(w, apperr.NotFound("session", r.PathValue("sid")))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	view, err := sess.View()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var cmd session.Command
	if err := decode(r, &cmd); err != nil {
		writeError(w, err)
		return
	}
	view, err := sess.Dispatch(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type progressJSON struct {
	stats.Progress
	Percent *int   `json:"percent,omitempty"`
	Label   string `json:"label"`
}

type chapterStatsJSON struct {
	Ref  catalog.ChapterRef `json:"ref"`
	Name string             `json:"name"`
	Path string             `json:"path"`
	progressJSON
}

func percent(p stats.Progress) *int {
	if pct, ok := p.Percent(); ok {
		return &pct
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	st, err := sess.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	chapters := make([]chapterStatsJSON, 0, len(st.Order))
	for _, c := range st.Ordered() {
		chapters = append(chapters, chapterStatsJSON{
			Ref:          c.Ref,
			Name:         c.Name,
			Path:         c.Path(),
			progressJSON: progressJSON{Progress: c.Progress, Percent: percent(c.Progress), Label: c.ChapterLabel()},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overall":  progressJSON{Progress: st.Overall, Percent: percent(st.Overall), Label: st.Overall.OverallLabel()},
		"chapters": chapters,
	})
}

func (s *Server) handleStatsXLSX(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	st, err := sess.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := stats.WriteXLSX(&buf, st); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type themeJSON struct {
	Theme string `json:"theme"`
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	theme, err := sess.Theme(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, themeJSON{Theme: theme})
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req themeJSON
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := sess.SetTheme(r.Context(), req.Theme); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if s.cfg.Auth == nil {
		writeError(w, apperr.NotFound("auth provider", "sign-in"))
		return
	}
	var creds auth.Credentials
	if err := decode(r, &creds); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout())
	defer cancel()
	token, id, err := s.cfg.Auth.SignIn(ctx, creds)
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.External("sign_in", err)
		}
		writeError(w, err)
		return
	}
	isAdmin, err := s.isAdmin(r.Context(), id.UID)
	if err != nil {
		_ = s.cfg.Auth.SignOut(r.Context(), token)
		writeError(w, err)
		return
	}
	if err := sess.SetIdentity(r.Context(), &id); err != nil {
		_ = s.cfg.Auth.SignOut(r.Context(), token)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"user":    id,
		"isAdmin": isAdmin,
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if token := bearerToken(r); token != "" && s.cfg.Auth != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout())
		defer cancel()
		if err := s.cfg.Auth.SignOut(ctx, token); err != nil {
			writeError(w, apperr.External("sign_out", err))
			return
		}
	}
	if err := sess.SetIdentity(r.Context(), nil); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
