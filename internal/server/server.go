// Package server exposes the relayer's admission API over HTTP: an
// optional HTTP-Basic-authenticated admin surface for managing networks,
// relayers, and API keys, and an API-key-authenticated consumer surface
// for submitting and reading transactions. Grounded on the original
// implementation's server/mod.rs routing table (spec.md §6), built on
// Go 1.22's net/http.ServeMux method+pattern routing rather than a
// third-party router, since none of the example repos pull one in.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"txrelayer/internal/apperrors"
	"txrelayer/internal/store"
	domain "txrelayer/internal/types"
)

// Service is the set of operations the HTTP layer drives. internal/app's
// App implements it, keeping this package free of storage/chain/key
// custody details.
type Service interface {
	CreateNetwork(ctx context.Context, chainID uint64, name, httpRPC, wsRPC string) error

	CreateRelayer(ctx context.Context, name string, chainID uint64) (domain.Relayer, error)
	UpdateRelayer(ctx context.Context, id string, update domain.RelayerUpdate) error
	GetRelayer(ctx context.Context, id string) (domain.Relayer, error)
	ListRelayers(ctx context.Context, chainID *uint64) ([]domain.Relayer, error)
	CreateAPIKey(ctx context.Context, relayerID string) (string, error)

	AuthenticateToken(ctx context.Context, token string) (string, error)
	CreateTransaction(ctx context.Context, relayerID string, req CreateTransactionRequest) (string, error)
	GetTransaction(ctx context.Context, relayerID, txID string) (domain.ReadTxData, error)
	ListTransactions(ctx context.Context, relayerID string, filter store.ListTxFilter) ([]domain.ReadTxData, error)
	ProxyRPC(ctx context.Context, relayerID string, body json.RawMessage) (json.RawMessage, error)
}

// Config configures the HTTP surface.
type Config struct {
	DisableAuth bool
	AdminUser   string
	AdminPass   string
}

// Server wires Service onto the HTTP routing table.
type Server struct {
	svc    Service
	cfg    Config
	logger *zap.Logger
	mux    *http.ServeMux
}

// New builds a Server; call Handler to obtain the http.Handler to serve.
func New(svc Service, cfg Config, logger *zap.Logger) *Server {
	s := &Server{svc: svc, cfg: cfg, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler wraps the routing table with request logging and CORS,
// matching the original implementation's logging/CORS middleware layer.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	return s.logRequests(c.Handler(s.mux))
}

func (s *Server) routes() {
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("POST /1/admin/network/{chainId}", s.withAdminAuth(s.handleCreateNetwork))
	s.mux.HandleFunc("POST /1/admin/relayer", s.withAdminAuth(s.handleCreateRelayer))
	s.mux.HandleFunc("POST /1/admin/relayer/{id}", s.withAdminAuth(s.handleUpdateRelayer))
	s.mux.HandleFunc("POST /1/admin/relayer/{id}/key", s.withAdminAuth(s.handleCreateAPIKey))
	s.mux.HandleFunc("GET /1/admin/relayer/{id}", s.withAdminAuth(s.handleGetRelayer))
	s.mux.HandleFunc("GET /1/admin/relayers", s.withAdminAuth(s.handleListRelayers))

	s.mux.HandleFunc("POST /1/api/{token}/tx", s.withAPIKeyAuth(s.handleCreateTransaction))
	s.mux.HandleFunc("GET /1/api/{token}/tx/{id}", s.withAPIKeyAuth(s.handleGetTransaction))
	s.mux.HandleFunc("GET /1/api/{token}/txs", s.withAPIKeyAuth(s.handleListTransactions))
	s.mux.HandleFunc("POST /1/api/{token}/rpc", s.withAPIKeyAuth(s.handleProxyRPC))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// relayerIDCtxKey carries the relayer id a consumer API token authenticated
// as to the handler. Admin routes do not set it.
type ctxKey int

const relayerIDCtxKey ctxKey = 0

func withRelayerID(ctx context.Context, relayerID string) context.Context {
	return context.WithValue(ctx, relayerIDCtxKey, relayerID)
}

func relayerIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(relayerIDCtxKey).(string)
	return id
}

func (s *Server) withAdminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.DisableAuth {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.cfg.AdminUser || pass != s.cfg.AdminPass {
				w.Header().Set("WWW-Authenticate", `Basic realm="txrelayer-admin"`)
				writeError(w, apperrors.New(apperrors.Unauthorized, "admin authentication required"))
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) withAPIKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")

		relayerID, err := s.svc.AuthenticateToken(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		next(w, r.WithContext(withRelayerID(r.Context(), relayerID)))
	}
}

func writeError(w http.ResponseWriter, err error) {
	re := apperrors.As(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(re.StatusCode())
	_ = json.NewEncoder(w).Encode(map[string]string{"error": re.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.New(apperrors.InvalidFormat, "malformed request body: "+err.Error())
	}
	return nil
}
