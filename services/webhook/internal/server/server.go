package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"selfiebot/internal/ratelimit"
	"selfiebot/internal/security"
	"selfiebot/internal/servicetoken"
	"selfiebot/internal/util"
	"selfiebot/pkg/domain"
	"selfiebot/pkg/greenapi"
	"selfiebot/pkg/queue"
	"selfiebot/services/webhook/internal/app"
)

const defaultMaxWebhookBytes = 1 << 20

// Engine is the conversation engine as seen by the HTTP layer.
type Engine interface {
	Handle(ctx context.Context, evt domain.InboundEvent) error
	Session(userID string) (domain.Session, error)
	DeleteUser(ctx context.Context, userID string) error
	Job(ctx context.Context, jobID string) (queue.JobStatus, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	Engine             Engine
	Redis              redis.UniversalClient
	RateLimitPerMinute int
	// WebhookToken, when set, must be presented as a bearer token by GreenAPI.
	WebhookToken        string
	ProcessSelfMessages bool
	StrictValidation    bool
	MaxWebhookBytes     int64
	// AdminVerifier enables the admin endpoints when set.
	AdminVerifier  *servicetoken.Verifier
	Revoker        servicetoken.Revoker
	TrustedProxies *util.TrustedProxies
	// Alerter raises security_alert logs on repeated failures; nil disables it.
	Alerter *security.AuditAlerter
}

// Server exposes the webhook and admin endpoints.
type Server struct {
	engine         Engine
	mux            *http.ServeMux
	limiter        *ratelimit.FixedWindowLimiter
	webhookToken   string
	acceptedTypes  map[string]struct{}
	strict         bool
	maxBodyBytes   int64
	verifier       *servicetoken.Verifier
	revoker        servicetoken.Revoker
	trustedProxies *util.TrustedProxies
	alerter        *security.AuditAlerter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine required")
	}
	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 60
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "selfiebot:webhook:ratelimit", limit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init webhook limiter: %w", err)
	}
	accepted := map[string]struct{}{greenapi.TypeIncomingMessage: {}}
	if cfg.ProcessSelfMessages {
		accepted[greenapi.TypeOutgoingMessage] = struct{}{}
	}
	maxBody := cfg.MaxWebhookBytes
	if maxBody <= 0 {
		maxBody = defaultMaxWebhookBytes
	}
	s := &Server{
		engine:         cfg.Engine,
		mux:            http.NewServeMux(),
		limiter:        limiter,
		webhookToken:   strings.TrimSpace(cfg.WebhookToken),
		acceptedTypes:  accepted,
		strict:         cfg.StrictValidation,
		maxBodyBytes:   maxBody,
		verifier:       cfg.AdminVerifier,
		revoker:        cfg.Revoker,
		trustedProxies: cfg.TrustedProxies,
		alerter:        cfg.Alerter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("webhook", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/webhooks/greenapi", s.handleGreenAPI)

	if s.verifier == nil {
		return
	}
	// admin
	s.mux.Handle("/admin/users/", s.adminOnly(s.handleAdminUser))
	s.mux.Handle("/admin/jobs/", s.adminOnly(s.handleAdminJob))
	s.mux.Handle("/admin/tokens/revoke", s.adminOnly(s.handleRevokeToken))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type webhookResponse struct {
	OK      bool   `json:"ok"`
	Ignored string `json:"ignored,omitempty"`
}

func (s *Server) handleGreenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	logger := util.LoggerFromContext(r.Context())
	if s.webhookToken != "" {
		token, ok := servicetoken.BearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookToken)) != 1 {
			s.audit(r, "webhook.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		logger.Warn("webhook body unreadable", "err", err)
		s.malformed(w)
		return
	}
	wh, err := greenapi.ParseWebhook(body)
	if err != nil {
		logger.Warn("malformed webhook dropped", "err", err)
		s.malformed(w)
		return
	}
	if _, ok := s.acceptedTypes[wh.TypeWebhook]; !ok {
		logger.Debug("webhook type ignored", "type", wh.TypeWebhook)
		writeJSON(w, http.StatusOK, webhookResponse{OK: true, Ignored: wh.TypeWebhook})
		return
	}
	evt := wh.Event()
	if evt.UserID == "" {
		logger.Warn("webhook without sender dropped")
		s.malformed(w)
		return
	}
	if !s.limiter.Allow(r.Context(), evt.UserID) {
		s.audit(r, "webhook.receive", "rate_limited", "user_id", evt.UserID)
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, webhookResponse{OK: false})
		return
	}

	if err := s.engine.Handle(r.Context(), evt); err != nil {
		logger.Error("webhook handling failed", "user_id", evt.UserID, "message_id", evt.MessageID, "err", err)
		writeJSON(w, http.StatusInternalServerError, webhookResponse{OK: false})
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{OK: true})
}

// malformed acknowledges bodies GreenAPI should not redeliver, unless strict validation is on.
func (s *Server) malformed(w http.ResponseWriter) {
	if s.strict {
		writeJSON(w, http.StatusBadRequest, webhookResponse{OK: false})
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{OK: true})
}

type adminHandler func(http.ResponseWriter, *http.Request, jwt.RegisteredClaims)

func (s *Server) adminOnly(next adminHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			s.audit(r, "webhook.admin.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.verifier.Verify(token)
		if err != nil {
			s.audit(r, "webhook.admin.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if s.revoker != nil {
			revoked, err := s.revoker.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				s.audit(r, "webhook.admin.authorize", "fail", "subject", claims.Subject, "reason", "revocation_check_failed")
				writeError(w, http.StatusServiceUnavailable, "token revocation check failed")
				return
			}
			if revoked {
				s.audit(r, "webhook.admin.authorize", "fail", "subject", claims.Subject, "reason", "revoked")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		s.audit(r, "webhook.admin.authorize", "success", "subject", claims.Subject)
		next(w, r, claims)
	})
}

// handleAdminUser serves /admin/users/{id}/session (GET) and /admin/users/{id} (DELETE).
func (s *Server) handleAdminUser(w http.ResponseWriter, r *http.Request, claims jwt.RegisteredClaims) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/users/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	userID := parts[0]
	if len(parts) == 2 {
		if parts[1] != "session" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		sess, err := s.engine.Session(userID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{
			UserID:           sess.UserID,
			State:            string(sess.State),
			Submenu:          sess.Submenu.String(),
			PaginationOffset: sess.PaginationOffset,
			LastTextAt:       sess.LastTextAt,
			UpdatedAt:        sess.UpdatedAt,
		})
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.engine.DeleteUser(r.Context(), userID); err != nil {
		s.audit(r, "webhook.admin.user_delete", "fail", "subject", claims.Subject, "target_user", userID)
		writeAppError(w, err)
		return
	}
	s.audit(r, "webhook.admin.user_delete", "success", "subject", claims.Subject, "target_user", userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAdminJob(w http.ResponseWriter, r *http.Request, _ jwt.RegisteredClaims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	job, err := s.engine.Job(r.Context(), jobID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleRevokeToken revokes the presented admin token for the rest of its lifetime.
func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request, claims jwt.RegisteredClaims) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.revoker == nil {
		writeError(w, http.StatusNotImplemented, "token revocation disabled")
		return
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time) + servicetoken.DefaultLeeway
	}
	if err := s.revoker.Revoke(r.Context(), claims.ID, ttl); err != nil {
		s.audit(r, "webhook.admin.token_revoke", "fail", "subject", claims.Subject)
		writeError(w, http.StatusServiceUnavailable, "token revocation failed")
		return
	}
	s.audit(r, "webhook.admin.token_revoke", "success", "subject", claims.Subject)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type sessionResponse struct {
	UserID           string     `json:"userId"`
	State            string     `json:"state"`
	Submenu          string     `json:"submenu"`
	PaginationOffset int        `json:"paginationOffset"`
	LastTextAt       *time.Time `json:"lastTextAt,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, app.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, app.ErrMissingUser):
		writeError(w, http.StatusBadRequest, "user id required")
	default:
		slog.Error("admin request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}
