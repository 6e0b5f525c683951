package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"appraiserai/internal/ratelimit"
	"appraiserai/internal/util"
	"appraiserai/pkg/ai"
	"appraiserai/pkg/auth"
	"appraiserai/pkg/credential"
	"appraiserai/pkg/domain"
	"appraiserai/pkg/imaging"
	"appraiserai/services/appraiser/internal/app"
	"appraiserai/services/appraiser/internal/security"
)

const (
	maxJSONBodyBytes  = 1 << 20
	maxBatchBodyBytes = 256 << 20
	multipartMemory   = 32 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	MaxUploadBytes int64

	// AppraisalLimiter throttles appraisal and batch requests per user. Nil disables it.
	AppraisalLimiter ratelimit.Limiter

	// Alerter raises security alerts from audit events. Nil disables it.
	Alerter *security.AuditAlerter

	// TrustedProxies may set X-Forwarded-For.
	TrustedProxies util.ProxyAllowlist
}

// Server exposes HTTP endpoints for the appraiser service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	limiter        ratelimit.Limiter
	alerter        *security.AuditAlerter
	proxies        util.ProxyAllowlist
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = imaging.DefaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
		limiter:        cfg.AppraisalLimiter,
		alerter:        cfg.Alerter,
		proxies:        cfg.TrustedProxies,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("appraiser", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/auth/me", s.withUser(s.handleMe))

	s.mux.Handle("/templates", s.withUser(s.handleTemplates))

	// appraisals
	s.mux.Handle("/appraisals", s.withUser(s.handleAppraisals))
	s.mux.Handle("/appraisals/", s.withUser(s.handleAppraisalByID))

	// batches
	s.mux.Handle("/batches", s.withUser(s.handleBatches))
	s.mux.Handle("/batches/", s.withUser(s.handleBatchByID))

	s.mux.Handle("/admin/credential", s.withUser(s.handleCredential))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserFromToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

// allowRate applies the optional per-user limiter.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, user domain.User) bool {
	if s.limiter == nil {
		return true
	}
	key := user.ID
	if key == "" {
		key = s.clientIP(r)
	}
	ok, retryAfter := s.limiter.Allow(r.Context(), key)
	if ok {
		return true
	}
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	s.audit(r, "appraiser.appraise", "rate_limited", "user_id", user.ID)
	writeError(w, http.StatusTooManyRequests, "too many appraisal requests")
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
	if s.alerter == nil {
		return
	}
	result, err := s.alerter.Observe(r.Context(), event, outcome, s.clientIP(r))
	if err != nil {
		logger.Warn("security alert evaluation failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", s.clientIP(r),
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.proxies)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst)
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

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorCode(w, status, errorCode(status, msg), msg)
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

// writeAppError maps pipeline and application errors onto HTTP responses.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var tagged *ai.Error
	switch {
	case errors.Is(err, ai.ErrNoCredential):
		writeErrorCode(w, http.StatusServiceUnavailable, "CREDENTIAL_NOT_CONFIGURED",
			"The vision API key is not configured. Ask an administrator to set it.")
	case errors.Is(err, ai.ErrInvalidCredential):
		writeErrorCode(w, http.StatusBadGateway, "VISION_INVALID_CREDENTIAL", ai.MessageOf(err))
	case errors.As(err, &tagged):
		switch tagged.Kind {
		case ai.KindInvalidInput:
			writeErrorCode(w, http.StatusBadRequest, "APPRAISAL_INVALID_INPUT", tagged.Message)
		case ai.KindRateLimited:
			writeErrorCode(w, http.StatusServiceUnavailable, "VISION_RATE_LIMITED", tagged.Message)
		case ai.KindInvalidResponse:
			writeErrorCode(w, http.StatusBadGateway, "VISION_INVALID_RESPONSE", tagged.Message)
		case ai.KindPersistence:
			writeErrorCode(w, http.StatusInternalServerError, "APPRAISAL_SAVE_FAILED", tagged.Message)
		case ai.KindCredential:
			writeErrorCode(w, http.StatusBadGateway, "VISION_INVALID_CREDENTIAL", tagged.Message)
		default:
			writeErrorCode(w, http.StatusBadGateway, "VISION_UPSTREAM_ERROR", tagged.Message)
		}
	case errors.Is(err, app.ErrNotFound):
		notFound(w, "not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUserDisabled):
		writeErrorCode(w, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS", app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeErrorCode(w, http.StatusConflict, "AUTH_EMAIL_EXISTS", err.Error())
	case errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordWeak):
		writeErrorCode(w, http.StatusBadRequest, "AUTH_INVALID_REQUEST", err.Error())
	case errors.Is(err, credential.ErrEmptyKey), errors.Is(err, credential.ErrInvalidKeyFormat):
		writeErrorCode(w, http.StatusBadRequest, "CREDENTIAL_INVALID_FORMAT", err.Error())
	case errors.Is(err, app.ErrNoImages), errors.Is(err, app.ErrTooManyImages):
		writeErrorCode(w, http.StatusBadRequest, "BATCH_INVALID_REQUEST", err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "FORBIDDEN"
	case message == "invalid json body":
		return "INVALID_REQUEST"
	case message == "invalid form data":
		return "INVALID_UPLOAD_FORM"
	case strings.Contains(message, "too many"):
		return "RATE_LIMITED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "UPLOAD_TOO_LARGE"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

// pathParts splits the remainder of r.URL.Path after prefix.
func pathParts(r *http.Request, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return err == nil && v
}

func logDuration(r *http.Request, msg string, started time.Time, attrs ...any) {
	attrs = append(attrs, "duration_ms", time.Since(started).Milliseconds())
	util.LoggerFromContext(r.Context()).Log(r.Context(), slog.LevelDebug, msg, attrs...)
}
