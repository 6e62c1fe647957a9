package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/praxis/internal/admin"
	"github.com/p-n-ai/praxis/internal/catalog"
	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

const defaultEventLimit = 50

type actorHandler func(w http.ResponseWriter, r *http.Request, actor admin.Actor)

// withActor resolves the caller before h runs. A failed lookup is answered
// here, so h only sees callers whose role is known.
func (s *Server) withActor(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.actor(r)
		if err != nil {
			writeError(w, err)
			return
		}
		h(w, r, actor)
	}
}

// actor resolves the bearer token. A missing or unknown token is a non-admin
// actor, so the gateway reports Unauthorized; a lookup that fails is an
// external error.
func (s *Server) actor(r *http.Request) (admin.Actor, error) {
	token := bearerToken(r)
	if token == "" || s.cfg.Auth == nil {
		return admin.Actor{}, nil
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout())
	defer cancel()
	id, ok, err := s.cfg.Auth.Identify(ctx, token)
	if err != nil {
		slog.Warn("token lookup failed", "error", err)
		return admin.Actor{}, apperr.External("identify", err)
	}
	if !ok {
		return admin.Actor{}, nil
	}
	isAdmin, err := s.isAdmin(r.Context(), id.UID)
	if err != nil {
		return admin.Actor{}, err
	}
	return admin.Actor{UID: id.UID, IsAdmin: isAdmin}, nil
}

func (s *Server) isAdmin(ctx context.Context, uid string) (bool, error) {
	if s.cfg.Roles == nil {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	ok, err := s.cfg.Roles.IsAdmin(ctx, uid)
	if err != nil {
		slog.Warn("role lookup failed", "uid", uid, "error", err)
		return false, apperr.External("role_lookup", err)
	}
	return ok, nil
}

func subjectRef(r *http.Request) catalog.SubjectRef {
	return catalog.SubjectRef{BatchID: r.PathValue("bid"), SubjectID: r.PathValue("sub")}
}

func chapterRef(r *http.Request) catalog.ChapterRef {
	return subjectRef(r).Chapter(r.PathValue("cid"))
}

// create decodes a T, applies op and answers 201 with the created node.
func create[T any](w http.ResponseWriter, r *http.Request, op func(T) (T, error)) {
	var in T
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	out, err := op(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func remove(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	create(w, r, func(b catalog.Batch) (catalog.Batch, error) {
		return s.cfg.Admin.CreateBatch(r.Context(), actor, b)
	})
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	remove(w, s.cfg.Admin.DeleteBatch(r.Context(), actor, r.PathValue("bid")))
}

func (s *Server) handleCreateSubject(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	create(w, r, func(sub catalog.Subject) (catalog.Subject, error) {
		return s.cfg.Admin.CreateSubject(r.Context(), actor, r.PathValue("bid"), sub)
	})
}

func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	remove(w, s.cfg.Admin.DeleteSubject(r.Context(), actor, subjectRef(r)))
}

func (s *Server) handleCreateChapter(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	create(w, r, func(c catalog.Chapter) (catalog.Chapter, error) {
		return s.cfg.Admin.CreateChapter(r.Context(), actor, subjectRef(r), c)
	})
}

func (s *Server) handleDeleteChapter(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	remove(w, s.cfg.Admin.DeleteChapter(r.Context(), actor, chapterRef(r)))
}

func (s *Server) handleAddLecture(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	create(w, r, func(l catalog.Lecture) (catalog.Lecture, error) {
		return s.cfg.Admin.AddLecture(r.Context(), actor, chapterRef(r), l)
	})
}

func (s *Server) handleRemoveLecture(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	remove(w, s.cfg.Admin.RemoveLecture(r.Context(), actor, chapterRef(r), r.PathValue("lid")))
}

func (s *Server) handleAddResource(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	create(w, r, func(res catalog.Resource) (catalog.Resource, error) {
		return s.cfg.Admin.AddResource(r.Context(), actor, chapterRef(r), res)
	})
}

func (s *Server) handleRemoveResource(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	kind := catalog.ResourceKind(r.PathValue("kind"))
	remove(w, s.cfg.Admin.RemoveResource(r.Context(), actor, chapterRef(r), kind, r.PathValue("rid")))
}

func (s *Server) handlePostAnnouncement(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := s.cfg.Admin.PostAnnouncement(r.Context(), actor, req.Title, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type eventJSON struct {
	ActorUID  string         `json:"actorUid"`
	Action    string         `json:"action"`
	Target    string         `json:"target"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request, actor admin.Actor) {
	if !actor.IsAdmin {
		writeError(w, apperr.Unauthorized("list_events"))
		return
	}
	if s.cfg.Audit == nil {
		writeError(w, apperr.NotFound("audit log", "events"))
		return
	}
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, apperr.Validation("limit", "limit must be a positive integer"))
			return
		}
		limit = min(n, 500)
	}
	events, err := s.cfg.Audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, apperr.External("list_events", err))
		return
	}
	out := make([]eventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON{
			ActorUID:  e.ActorUID,
			Action:    e.Action,
			Target:    e.Target,
			Data:      e.Data,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
