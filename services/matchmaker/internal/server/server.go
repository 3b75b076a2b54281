package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"pawmatch/internal/ratelimit"
	"pawmatch/internal/usertoken"
	"pawmatch/internal/util"
	"pawmatch/pkg/domain"
	"pawmatch/services/matchmaker/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  *usertoken.Verifier
	SwipeLimiter   *ratelimit.FixedWindowLimiter
	UploadLimiter  *ratelimit.FixedWindowLimiter
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the matchmaker service.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	swipeLimiter   *ratelimit.FixedWindowLimiter
	uploadLimiter  *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		swipeLimiter:   cfg.SwipeLimiter,
		uploadLimiter:  cfg.UploadLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("matchmaker", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", s.app.Metrics().Handler())

	s.mux.Handle("/deck", s.withUser(s.handleDeck))
	s.mux.Handle("/swipes", s.withUser(s.handleSwipes))
	s.mux.Handle("/matches", s.withUser(s.handleMatches))
	s.mux.Handle("/pets/", s.withUser(s.handlePetByID))
	s.mux.Handle("/resize", s.withUser(s.handleResize))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "auth not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) handleDeck(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	cards, err := s.app.DeckCards(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	items := make([]petCard, 0, len(cards))
	for _, pet := range cards {
		items = append(items, petCard{
			Pet:           pet,
			ThumbnailURLs: s.app.ThumbnailURLs(r.Context(), pet),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

type petCard struct {
	domain.Pet
	ThumbnailURLs []string `json:"thumbnailUrls,omitempty"`
}

type swipeRequest struct {
	PetID string `json:"petId"`
	Liked bool   `json:"liked"`
}

type swipeResponse struct {
	Swipe     domain.Swipe  `json:"swipe"`
	Match     *domain.Match `json:"match,omitempty"`
	Duplicate bool          `json:"duplicate"`
}

func (s *Server) handleSwipes(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.swipeLimiter != nil && !s.swipeLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req swipeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.PetID) == "" {
		writeError(w, http.StatusBadRequest, "petId is required")
		return
	}
	result, err := s.app.RecordSwipe(r.Context(), userID, req.PetID, req.Liked)
	if err != nil {
		writeAppError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		// The pair was already decided; return the prior decision.
		status = http.StatusOK
	}
	writeJSON(w, status, swipeResponse{
		Swipe:     result.Swipe,
		Match:     result.Match,
		Duplicate: result.Duplicate,
	})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	matches, err := s.app.ListMatches(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": matches,
		"count": len(matches),
	})
}

// /pets/{id}/photos
func (s *Server) handlePetByID(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.TrimPrefix(r.URL.Path, "/pets/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) != 2 || parts[1] != "photos" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.uploadLimiter != nil && !s.uploadLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	s.handleUploadPhoto(w, r, id)
}

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request, petID string) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo is required (field: photo)")
		return
	}
	defer file.Close()
	result, err := s.app.UploadPhoto(r.Context(), petID, header.Filename, file, header.Size)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

type resizeRequest struct {
	PetID      string `json:"petId"`
	StorageKey string `json:"storageKey"`
}

// handleResize re-drives thumbnail generation for an already-stored original.
func (s *Server) handleResize(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req resizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.PetID) == "" || strings.TrimSpace(req.StorageKey) == "" {
		writeError(w, http.StatusBadRequest, "petId and storageKey are required")
		return
	}
	job, err := s.app.EnqueueResize(r.Context(), req.PetID, req.StorageKey)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

// writeAppError maps core errors onto HTTP statuses. Transient backend faults
// surface as 503 so clients retry instead of treating them as final.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUserNotFound):
		notFound(w, "user not found")
	case errors.Is(err, app.ErrPetNotFound):
		notFound(w, "pet not found")
	case errors.Is(err, app.ErrStoreUnavailable),
		errors.Is(err, app.ErrCacheUnavailable),
		errors.Is(err, app.ErrQueueUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "auth not configured":
		return "SYSTEM_INTERNAL_ERROR"
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "too many requests":
		return "RATE_LIMITED"
	case message == "user not found":
		return "USER_NOT_FOUND"
	case message == "pet not found":
		return "PET_NOT_FOUND"
	case message == "service unavailable":
		return "SYSTEM_UNAVAILABLE"
	case message == "invalid form data":
		return "UPLOAD_INVALID_FORM"
	case strings.Contains(message, "photo is required"):
		return "UPLOAD_PHOTO_REQUIRED"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusServiceUnavailable:
		return "SYSTEM_UNAVAILABLE"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
