// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzhttp"

	"github.com/AndyChoi4495/fragments/internal/auth"
	"github.com/AndyChoi4495/fragments/internal/fragment"
	"github.com/AndyChoi4495/fragments/internal/logging"
	"github.com/AndyChoi4495/fragments/internal/metrics"
	"github.com/AndyChoi4495/fragments/internal/protocol"
	"github.com/AndyChoi4495/fragments/internal/quota"
)

// Options holds the server settings that are not collaborators.
type Options struct {
	// APIURL is the public base URL used in Location headers. When empty
	// the request's scheme and host are used.
	APIURL string
	// TrustProxy lets X-Forwarded-Proto pick that scheme. Enable it only
	// behind a proxy that sets the header itself.
	TrustProxy    bool
	MaxUploadSize int64

	Version   string
	Author    string
	GithubURL string
}

// Server is the HTTP server.
type Server struct {
	fragments *fragment.Service
	auth      auth.Authenticator
	limiter   quota.Limiter
	opts      Options
	hostname  string
}

// NewServer creates a new server. limiter may be nil to disable rate
// limiting.
func NewServer(fragments *fragment.Service, authn auth.Authenticator, limiter quota.Limiter, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 10 * 1024 * 1024
	}
	hostname, _ := os.Hostname()
	return &Server{
		fragments: fragments,
		auth:      authn,
		limiter:   limiter,
		opts:      opts,
		hostname:  hostname,
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Fragment endpoints
	mux.Handle("POST /v1/fragments", s.protect(s.handleCreate))
	mux.Handle("GET /v1/fragments", s.protect(s.handleList))
	mux.Handle("GET /v1/fragments/{id}", s.protect(s.handleGet))
	mux.Handle("GET /v1/fragments/{id}/info", s.protect(s.handleInfo))
	mux.Handle("PUT /v1/fragments/{id}", s.protect(s.handleUpdate))
	mux.Handle("DELETE /v1/fragments/{id}", s.protect(s.handleDelete))

	// metrics.Middleware must see the request the mux matched so it can
	// label by pattern.
	return logging.Middleware(metrics.Middleware(gzhttp.GzipHandler(mux)))
}

// protect wraps h with authentication then rate limiting.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	var next http.Handler = h
	if s.limiter != nil {
		next = quota.RateLimitMiddleware(s.limiter, auth.OwnerID)(next)
	}
	return auth.Middleware(s.auth)(next)
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	s.sendJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:    protocol.StatusOK,
		Author:    s.opts.Author,
		GithubURL: s.opts.GithubURL,
		Version:   s.opts.Version,
		Hostname:  s.hostname,
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// readBody reads the request body up to the upload limit. On failure the
// error response has already been sent.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.ContentLength > s.opts.MaxUploadSize {
		s.sendError(w, http.StatusRequestEntityTooLarge, "fragment exceeds maximum size of "+
			strconv.FormatInt(s.opts.MaxUploadSize, 10)+" bytes")
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "fragment exceeds maximum size of "+
				strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return nil, false
		}
		s.sendError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

// location builds the absolute URL of a fragment for the Location header.
func (s *Server) location(r *http.Request, id string) string {
	base := strings.TrimRight(s.opts.APIURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if s.opts.TrustProxy {
			switch proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto")); proto {
			case "http", "https":
				scheme = proto
			}
		}
		base = scheme + "://" + r.Host
	}
	return base + "/v1/fragments/" + id
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, protocol.NewError(code, message))
}

// sendFragmentError maps a fragment.Error to its HTTP status. Server-side
// failures are logged and reported without detail.
func (s *Server) sendFragmentError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		logging.WithContext(r.Context()).Error("request failed",
			logging.String("kind", fragment.KindOf(err).String()),
			logging.Err(err))
		s.sendError(w, code, http.StatusText(code))
		return
	}
	s.sendError(w, code, err.Error())
}

func statusFor(err error) int {
	switch fragment.KindOf(err) {
	case fragment.KindValidation:
		if fragment.ReasonOf(err) == fragment.ReasonUnsupportedType {
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case fragment.KindNotFound:
		return http.StatusNotFound
	case fragment.KindUnsupportedConversion:
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}
