package inlineedit

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/wikiedit/horosafe"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/session"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/wiki"
	"github.com/hazyhaar/wikiedit/shield"
)

// Handler returns a router carrying the shield stack and all routes.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP registers the wikiedit endpoints on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/assets/wikiedit.css", s.handleStyle)

	r.Post("/api/views", s.handleOpenView)
	r.Get("/api/views/{viewID}", s.handleGetView)
	r.Get("/api/views/{viewID}/html", s.handleViewHTML)
	r.Get("/api/views/{viewID}/style.css", s.handleViewStyle)
	r.Post("/api/views/{viewID}/fragments/{fragmentID}/edit", s.handleBeginEdit)

	r.Get("/api/sessions/{sessionID}", s.handleGetSession)
	r.Post("/api/sessions/{sessionID}/submit", s.handleSubmit)
	r.Post("/api/sessions/{sessionID}/cancel", s.handleCancel)

	r.Get("/api/locate", s.handleLocate)
}

type viewResponse struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	RevisionID string         `json:"revision_id,omitempty"`
	Fragments  []FragmentInfo `json:"fragments"`
}

func viewJSON(v *View) viewResponse {
	return viewResponse{ID: v.ID, Title: v.Title, RevisionID: v.RevisionID, Fragments: v.Fragments()}
}

func (s *Service) handleStyle(w http.ResponseWriter, r *http.Request) {
	css, err := s.Style(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write([]byte(css))
}

func (s *Service) handleOpenView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title required"})
		return
	}
	v, err := s.OpenView(r.Context(), req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewJSON(v))
}

func (s *Service) handleGetView(w http.ResponseWriter, r *http.Request) {
	v, err := s.View(chi.URLParam(r, "viewID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewJSON(v))
}

func (s *Service) handleViewHTML(w http.ResponseWriter, r *http.Request) {
	v, err := s.View(chi.URLParam(r, "viewID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(v.HTML()))
}

func (s *Service) handleViewStyle(w http.ResponseWriter, r *http.Request) {
	v, err := s.View(chi.URLParam(r, "viewID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write([]byte(v.Style(r.Context())))
}

func (s *Service) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	info, err := s.BeginEdit(r.Context(), chi.URLParam(r, "viewID"), chi.URLParam(r, "fragmentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub session.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	info, err := s.Submit(r.Context(), chi.URLParam(r, "sessionID"), sub)
	if err != nil {
		s.writeSessionError(w, r, info, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	info, err := s.Cancel(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeSessionError(w, r, info, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleLocate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title, text := q.Get("title"), q.Get("text")
	if title == "" || text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title and text required"})
		return
	}
	res, err := s.Locate(r.Context(), title, text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func statusOf(err error) int {
	var step *session.StepError
	switch {
	case errors.Is(err, ErrViewNotFound), errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrFragmentNotFound), errors.Is(err, wiki.ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrFragmentBusy), errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrExcerptMissing), errors.Is(err, session.ErrEditConflict):
		return http.StatusConflict
	case errors.Is(err, horosafe.ErrInvalidTitle):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotEditable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &step):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= 500 {
		shield.GetLogger(r.Context()).Error("inlineedit: request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeSessionError reports a failed session operation together with the
// session's state, so the caller can offer retry or cancel.
func (s *Service) writeSessionError(w http.ResponseWriter, r *http.Request, info *SessionInfo, err error) {
	if info == nil {
		s.writeError(w, r, err)
		return
	}
	code := statusOf(err)
	if code >= 500 {
		shield.GetLogger(r.Context()).Error("inlineedit: session failed", "session", info.ID, "error", err)
	}
	writeJSON(w, code, struct {
		Error   string       `json:"error"`
		Session *SessionInfo `json:"session"`
	}{err.Error(), info})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
