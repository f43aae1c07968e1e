// Package httpserver exposes the HTTP surface: tool dispatch for agent
// callers and read endpoints for UI consumers.
package httpserver

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/vibetrade/studio/errs"
	"github.com/vibetrade/studio/internal/app/tools"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	healthPath = "/health"
	readyPath  = "/ready"

	strategyDetailPrefix = "/api/strategies/"
	toolPrefix           = "/tools/"
)

type handlerFunc func(http.ResponseWriter, *http.Request)

// Options configures the HTTP handler.
type Options struct {
	// AuthToken enables bearer authentication when non-empty.
	AuthToken string
	// ToolRate caps tool dispatch throughput; zero disables limiting.
	ToolRate rate.Limit
	// ToolBurst is the limiter burst when ToolRate is set.
	ToolBurst int
	// Ready reports readiness of downstream dependencies; nil means always ready.
	Ready func() error
	// Logger receives request-level failures; nil disables logging.
	Logger *log.Logger
}

type httpServer struct {
	service *tools.Service
	limiter *rate.Limiter
	ready   func() error
	logger  *log.Logger
}

// NewHandler creates the HTTP handler for the tool and read surfaces.
func NewHandler(service *tools.Service, opts Options) http.Handler {
	server := &httpServer{
		service: service,
		limiter: nil,
		ready:   opts.Ready,
		logger:  opts.Logger,
	}
	if opts.ToolRate > 0 {
		burst := opts.ToolBurst
		if burst <= 0 {
			burst = 1
		}
		server.limiter = rate.NewLimiter(opts.ToolRate, burst)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(server.root))
	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.health,
	}))
	mux.Handle(readyPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.readiness,
	}))
	mux.Handle(strategyDetailPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getStrategy,
	}))
	mux.Handle(toolPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.dispatchTool,
	}))

	return withCORS(withAuth(mux, opts.AuthToken))
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func (s *httpServer) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": "studio", "status": "ok"})
}

func (s *httpServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) readiness(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil {
		if err := s.ready(); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *httpServer) getStrategy(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, strategyDetailPrefix), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "strategy id required")
		return
	}
	joined, err := s.service.GetStrategyWithCards(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

func (s *httpServer) dispatchTool(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "tool rate limit exceeded")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, toolPrefix), "/")
	if name == "" {
		writeError(w, http.StatusNotFound, "tool name required")
		return
	}
	handler, ok := toolHandlers[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown tool: "+name)
		return
	}

	limitRequestBody(w, r)
	result, err := handler(s.service, r)
	if err != nil {
		if isRequestTooLarge(err) {
			writeDecodeError(w, err)
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeServiceError maps structured error codes onto HTTP statuses and renders
// the full envelope so agent callers keep the recovery hint.
func (s *httpServer) writeServiceError(w http.ResponseWriter, err error) {
	envelope, ok := errs.AsE(err)
	if !ok {
		if s.logger != nil {
			s.logger.Printf("unclassified error: %v", err)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := statusForCode(envelope.Code)
	if status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Printf("request failed: %v", err)
	}
	payload := map[string]any{
		"error": envelope.Message,
		"code":  string(envelope.Code),
	}
	if envelope.RecoveryHint != "" {
		payload["recovery_hint"] = envelope.RecoveryHint
	}
	if len(envelope.Details) > 0 {
		payload["details"] = envelope.Details
	}
	if envelope.Code.Retryable() {
		payload["retryable"] = true
	}
	writeJSON(w, status, payload)
}

func statusForCode(code errs.Code) int {
	switch code {
	case errs.CodeNotFound, errs.CodeCardNotFound, errs.CodeStrategyNotFound,
		errs.CodeArchetypeNotFound, errs.CodeSchemaNotFound, errs.CodeAttachmentNotFound:
		return http.StatusNotFound
	case errs.CodeValidation, errs.CodeSchemaValidation, errs.CodeInvalidRole,
		errs.CodeInvalidStatus, errs.CodeDuplicateAttachment:
		return http.StatusBadRequest
	case errs.CodeSchemaEtagMismatch:
		return http.StatusConflict
	case errs.CodeTimeout:
		return http.StatusGatewayTimeout
	case errs.CodeDatabase, errs.CodeNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// withAuth enforces bearer authentication when token is non-empty. Liveness
// probes and CORS preflights stay open.
func withAuth(handler http.Handler, token string) http.Handler {
	if token == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || r.URL.Path == "/" || r.URL.Path == healthPath || r.URL.Path == readyPath {
			handler.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		scheme, provided, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || provided == "" {
			writeError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		if provided != token {
			writeError(w, http.StatusForbidden, "Invalid authentication token")
			return
		}
		handler.ServeHTTP(w, r)
	})
}
