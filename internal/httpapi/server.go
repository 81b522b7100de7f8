// Package httpapi exposes the translation gateway over HTTP. Two API
// generations share the same validation and broker path: v2 is the current
// surface, v1 the deprecated one kept for legacy integrations.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tartunlp/translation-gateway/internal/broker"
	"github.com/tartunlp/translation-gateway/internal/correction"
	"github.com/tartunlp/translation-gateway/internal/registry"
	"github.com/tartunlp/translation-gateway/internal/translate"
)

// Broker is the publish-and-await surface the handlers depend on.
type Broker interface {
	Call(ctx context.Context, body []byte, routingKey string, timeout time.Duration) ([]byte, error)
}

// Server wires the validator, registry, broker client, and correction sink
// into HTTP handlers. All dependencies are explicit; nothing is ambient.
type Server struct {
	validator *translate.Validator
	registry  *registry.Registry
	broker    Broker
	sink      correction.Sink
	limiter   *KeyLimiter
	logger    *slog.Logger

	exchange    string
	callTimeout time.Duration
}

// Config collects the server's dependencies.
type Config struct {
	Validator   *translate.Validator
	Registry    *registry.Registry
	Broker      Broker
	Sink        correction.Sink
	Limiter     *KeyLimiter
	Logger      *slog.Logger
	Exchange    string
	CallTimeout time.Duration
}

// NewServer builds the HTTP server component.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		validator:   cfg.Validator,
		registry:    cfg.Registry,
		broker:      cfg.Broker,
		sink:        cfg.Sink,
		limiter:     cfg.Limiter,
		logger:      logger,
		exchange:    cfg.Exchange,
		callTimeout: cfg.CallTimeout,
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v2", s.handleConfigV2)
	mux.HandleFunc("POST /v2", s.handleTranslateV2)
	mux.HandleFunc("GET /v2/{$}", s.handleConfigV2)
	mux.HandleFunc("POST /v2/{$}", s.handleTranslateV2)

	mux.HandleFunc("GET /v1", s.handleConfigV1)
	mux.HandleFunc("POST /v1", s.handleTranslateV1)
	mux.HandleFunc("GET /v1/support", s.handleConfigV1)
	mux.HandleFunc("POST /v1/corrected", s.handleCorrectionV1)

	return cors(mux)
}

// cors applies the permissive policy the public API has always carried.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// translateAndRespond runs the shared validate → route → publish-and-await
// path and returns the decoded worker response. Validation failures are
// reported before any broker interaction. Routing-key construction differs
// per API generation, so each handler passes its own strategy selector: the
// workspace routing pattern applies only to the legacy surface.
func (s *Server) translateAndRespond(
	ctx context.Context,
	in translate.RawInput,
	pickStrategy func(registry.Workspace) translate.RoutingStrategy,
) (translate.Response, error) {
	req, ws, err := s.validator.Validate(in)
	if err != nil {
		return translate.Response{}, err
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, in.APIKey) {
		return translate.Response{}, translate.NewStatusError(
			translate.ClassRateLimited, "Too many requests.", nil)
	}

	routingKey, err := pickStrategy(ws).RoutingKey(ws, req)
	if err != nil {
		return translate.Response{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return translate.Response{}, err
	}

	reply, err := s.broker.Call(ctx, body, routingKey, s.callTimeout)
	if err != nil {
		return translate.Response{}, classifyBrokerError(err)
	}
	return translate.DecodeResponse(reply)
}

// classifyBrokerError maps broker failures onto the error taxonomy.
func classifyBrokerError(err error) error {
	switch {
	case errors.Is(err, broker.ErrCallTimeout):
		return translate.NewStatusError(translate.ClassTimeout,
			"Translation request timed out.", err)
	case errors.Is(err, broker.ErrNotConnected), errors.Is(err, broker.ErrClosed),
		errors.Is(err, broker.ErrConnectionLost):
		return translate.NewStatusError(translate.ClassBrokerUnavailable,
			"Translation service is unavailable.", err)
	default:
		return translate.NewStatusError(translate.ClassBrokerTransport,
			"Translation service failed.", err)
	}
}

// writeJSON renders a success payload.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError renders a classified failure as {"detail": ...} with its
// mapped status. The full cause is logged server-side only.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	se := translate.AsStatusError(err)
	if se.HTTPStatus() >= http.StatusInternalServerError {
		s.logger.Error("request failed", "class", string(se.Class), "error", err)
	} else {
		s.logger.Info("request rejected", "class", string(se.Class), "detail", se.Detail)
	}
	s.writeJSON(w, se.HTTPStatus(), map[string]string{"detail": se.Detail})
}
