// Package admin serves the operator endpoints: setting the bearer token,
// replacing CONNECT templates and token diagnostics.
package admin

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/YaganovValera/feed-bridge/common/httpserver"
	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
	"github.com/YaganovValera/feed-bridge/internal/token"
	"github.com/YaganovValera/feed-bridge/pkg/upstream"
)

const (
	HeaderAdminKey = "X-Admin-Key"
	HeaderAPIKey   = "X-API-Key"

	maxBody = 64 << 10
)

// Config configures the admin endpoints. Without an API key every
// authenticated endpoint answers 401.
type Config struct {
	APIKey string  `mapstructure:"api_key"`
	RPS    float64 `mapstructure:"rps"`
	Burst  int     `mapstructure:"burst"`
}

func (c *Config) applyDefaults() {
	if c.RPS <= 0 {
		c.RPS = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
}

// Handler implements the admin endpoints.
type Handler struct {
	cfg       Config
	tokens    *token.Store
	templates *upstream.Templates
	limiter   *rate.Limiter
	log       *logger.Logger
}

func New(cfg Config, tokens *token.Store, templates *upstream.Templates, log *logger.Logger) *Handler {
	cfg.applyDefaults()
	return &Handler{
		cfg:       cfg,
		tokens:    tokens,
		templates: templates,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		log:       log.Named("admin"),
	}
}

// Routes returns the endpoints to mount on the ops server.
func (h *Handler) Routes() []httpserver.Route {
	wrap := func(auth bool, fn http.HandlerFunc) http.Handler {
		var next http.Handler = fn
		if auth {
			next = requireKey(h.cfg.APIKey, next)
		}
		return requestID(requestLogger(h.log, limit(h.limiter, next)))
	}
	return []httpserver.Route{
		{Pattern: "/admin/token", Handler: wrap(false, h.token)},
		{Pattern: "/admin/connect-template", Handler: wrap(true, h.SetConnectTemplate)},
		{Pattern: "/diag", Handler: wrap(false, h.Diag)},
	}
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.Diag(w, r)
	case http.MethodPost:
		requireKey(h.cfg.APIKey, http.HandlerFunc(h.SetToken)).ServeHTTP(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type setTokenRequest struct {
	Token string `json:"token"`
	// JWT is the field name older operator scripts send.
	JWT string `json:"jwt"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// SetToken handles POST {"token": "..."}.
func (h *Handler) SetToken(w http.ResponseWriter, r *http.Request) {
	var req setTokenRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	raw := strings.TrimSpace(req.Token)
	if raw == "" {
		raw = strings.TrimSpace(req.JWT)
	}
	if raw == "" {
		badRequest(w, "token required")
		return
	}
	h.tokens.Set(raw)
	metrics.TokenSets.WithLabelValues("admin").Inc()

	info := h.tokens.Info()
	h.log.Info("token updated by operator",
		zap.Int64("exp", info.Exp),
		zap.Bool("usable", info.Usable))
	writeJSON(w, okResponse{OK: true})
}

type setTemplateRequest struct {
	Kind string `json:"kind"`
	B64  string `json:"b64"`
}

// SetConnectTemplate handles POST {"kind": "depth", "b64": "..."}. An
// empty kind replaces the shared template.
func (h *Handler) SetConnectTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req setTemplateRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if strings.TrimSpace(req.B64) == "" {
		badRequest(w, "b64 required")
		return
	}

	var kind *upstream.Kind
	if req.Kind != "" {
		k, err := upstream.ParseKind(req.Kind)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		kind = &k
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.B64))
	if err != nil {
		badRequest(w, "b64 is not valid base64")
		return
	}
	if err := h.templates.SetConnect(kind, raw); err != nil {
		badRequest(w, err.Error())
		return
	}
	h.log.Info("connect template replaced", zap.String("kind", req.Kind), zap.Int("len", len(raw)))
	writeJSON(w, okResponse{OK: true})
}

type diagResponse struct {
	token.Info
	ExpHuman  string         `json:"exp_human,omitempty"`
	Templates map[string]int `json:"templates"`
}

// Diag reports the token state and template sizes. The token itself is
// never returned.
func (h *Handler) Diag(w http.ResponseWriter, _ *http.Request) {
	info := h.tokens.Info()
	resp := diagResponse{Info: info, Templates: h.templates.Lengths()}
	if info.Exp > 0 {
		resp.ExpHuman = time.Unix(info.Exp, 0).UTC().Format("2006-01-02 15:04:05 UTC")
	}
	writeJSON(w, resp)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody)).Decode(v)
}
