package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/prefs/internal/prefs"
)

const maxBodySize = 1 << 20 // 1MB

// Deps holds dependencies for the HTTP API.
type Deps struct {
	Backend prefs.Backend
	Secret  string
	Issuer  string // optional; when set tokens must carry this iss
	Logger  *slog.Logger
	// Shared, when set, serves its own namespace so that the API and other
	// writers of that namespace (the MCP tools) use one instance.
	Shared  *prefs.Preferences
}

// instances hands out one Preferences per namespace so that writes to the
// same namespace share a write lock.
type instances struct {
	backend prefs.Backend
	logger  *slog.Logger
	mu      sync.Mutex
	byNS    map[string]*prefs.Preferences
}

func newInstances(b prefs.Backend, logger *slog.Logger, shared *prefs.Preferences) *instances {
	in := &instances{backend: b, logger: logger, byNS: make(map[string]*prefs.Preferences)}
	if shared != nil {
		in.byNS[shared.Namespace()] = shared
	}
	return in
}

func (in *instances) get(ns string) (*prefs.Preferences, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if p, ok := in.byNS[ns]; ok {
		return p, nil
	}
	p, err := prefs.New(in.backend, ns, prefs.WithLogger(in.logger))
	if err != nil {
		return nil, err
	}
	in.byNS[ns] = p
	return p, nil
}

// NewHandler returns the preferences REST API. Every route except /healthz
// requires a bearer token whose subject names the namespace to operate on.
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	in := newInstances(deps.Backend, logger, deps.Shared)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogging(logger))
	r.Use(Recovery(logger))

	r.Get("/healthz", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(JWTAuth(deps.Secret, deps.Issuer))

		r.Get("/prefs", handleList(in))
		r.Delete("/prefs", handleClear(in))
		r.Get("/prefs/{key}", handleGet(in))
		r.Put("/prefs/{key}", handlePut(in))
		r.Delete("/prefs/{key}", handleDelete(in))
		r.Get("/objects/{key}", handleGetObject(in))
		r.Put("/objects/{key}", handlePutObject(in))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// forRequest resolves the caller's Preferences, writing a 401 when the
// request carries no claims.
func forRequest(in *instances, w http.ResponseWriter, r *http.Request) (*prefs.Preferences, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "authentication_error", "missing claims")
		return nil, false
	}
	p, err := in.get(claims.Subject)
	if err != nil {
		httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
		return nil, false
	}
	return p, true
}

type listResponse struct {
	Namespace   string           `json:"namespace"`
	Preferences map[string]Entry `json:"preferences"`
}

func handleList(in *instances) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := forRequest(in, w, r)
		if !ok {
			return
		}

		all, err := p.All(r.Context())
		if err != nil {
			writePrefsError(w, in.logger, err)
			return
		}

		resp := listResponse{Namespace: p.Namespace(), Preferences: make(map[string]Entry, len(all))}
		for k, v := range all {
			e, err := EntryOf("", v)
			if err != nil {
				writePrefsError(w, in.logger, err)
				return
			}
			resp.Preferences[k] = e
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleClear(in *instances) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := forRequest(in, w, r)
		if !ok {
			return
		}
		if err := p.RemoveAll(r.Context()); err != nil {
			writePrefsError(w, in.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGet returns one entry. With ?type=<kind> the stored kind must match,
// otherwise the response is 409.
func handleGet(in *instances) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := forRequest(in, w, r)
		if !ok {
			return
		}
		key := chi.URLParam(r, "key")

		v, err := p.Get(r.Context(), key)
		if err != nil {
			writePrefsError(w, in.logger, err)
			return
		}

		if want := r.URL.Query().Get("type"); want != "" {
			kind, err := prefs.ParseKind(want)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			if v.Kind() != kind {
				writePrefsError(w, in.logger, &prefs.TypeMismatchError{Key: key, Want: kind, Got: v.Kind()})
				return
			}
		}

		e, err := EntryOf(key, v)
		if err != nil {
			writePrefsError(w, in.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func handlePut(in *instances) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := forRequest(in, w, r)
		if !ok {
			return
		}
		key := chi.URLParam(r, "key")

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var e Entry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		v, err := e.Decode()
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if err := p.Save(r.Context(), key, v); err != nil {
			writePrefsError(w, in.logger, err)
			return
		}
		if v == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		out, err := EntryOf(key, v)
		if err != nil {
			writePrefsError(w, in.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDelete(in *instances) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := forRequest(in, w, r)
		if !ok {
			return
		}
		if err := p.Remove(r.Context(), chi.URLParam(r, "key")); err != nil {
			writePrefsError(w, in.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetObject(in *instances) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := forRequest(in, w, r)
		if !ok {
			return
		}

		doc, err := prefs.GetObject[json.RawMessage](r.Context(), p, chi.URLParam(r, "key"))
		if err != nil {
			writePrefsError(w, in.logger, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	}
}

func handlePutObject(in *instances) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := forRequest(in, w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}
		if !json.Valid(body) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "body is not a JSON document")
			return
		}

		if err := p.StoreObject(r.Context(), chi.URLParam(r, "key"), json.RawMessage(body)); err != nil {
			writePrefsError(w, in.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writePrefsError maps preference errors to HTTP statuses.
func writePrefsError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		decErr *prefs.DecodeError
		encErr *prefs.EncodeError
	)
	switch {
	case errors.Is(err, prefs.ErrKeyAbsent):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, prefs.ErrEmptyKey), errors.Is(err, prefs.ErrUnsupportedValueType), errors.As(err, &encErr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, prefs.ErrTypeMismatch), errors.As(err, &decErr):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	default:
		logger.Error("preference operation failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
