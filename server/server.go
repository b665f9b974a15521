package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/medichain/metrics"
	service_registry "github.com/ahmadzakiakmal/medichain/srvreg"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
)

// Options configures the HTTP layer
type Options struct {
	Port           string
	AllowedOrigins []string
	// RateLimit is the sustained number of requests per second per client IP.
	// Zero disables rate limiting.
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
	// MaxBodyBytes bounds every request body
	MaxBodyBytes int64
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Port:           "5000",
		AllowedOrigins: []string{"*"},
		RateLimit:      20,
		RateBurst:      40,
		RequestTimeout: 60 * time.Second,
		MaxBodyBytes:   service_registry.MaxImageSize + 1<<20,
	}
}

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr        string
	server          *http.Server
	router          chi.Router
	logger          cmtlog.Logger
	node            *nm.Node
	cometBftRpc     *cmtrpc.Local
	startTime       time.Time
	serviceRegistry *service_registry.ServiceRegistry
	metrics         *metrics.Metrics
	limiter         *ipRateLimiter
	maxBodyBytes    int64
}

// NewWebServer creates a new web server. node may be nil when the ledger is disabled.
func NewWebServer(opts Options, serviceRegistry *service_registry.ServiceRegistry, m *metrics.Metrics, node *nm.Node, logger cmtlog.Logger) *WebServer {
	defaults := DefaultOptions()
	if opts.Port == "" {
		opts.Port = defaults.Port
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = defaults.AllowedOrigins
	}

	ws := &WebServer{
		httpAddr:        ":" + opts.Port,
		logger:          logger.With("module", "server"),
		node:            node,
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
		metrics:         m,
		maxBodyBytes:    opts.MaxBodyBytes,
	}
	if node != nil {
		ws.cometBftRpc = cmtrpc.New(node)
	}
	if opts.RateLimit > 0 {
		ws.limiter = newIPRateLimiter(opts.RateLimit, opts.RateBurst)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Razorpay-Signature"},
	}).Handler)

	r.Get("/health", ws.handleHealth)
	r.Get("/debug", ws.handleDebug)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Group(func(api chi.Router) {
		if ws.limiter != nil {
			api.Use(ws.limiter.Middleware)
		}
		api.Use(ws.limitBody)
		api.HandleFunc(service_registry.APIPrefix, ws.handleAPI)
		api.HandleFunc(service_registry.APIPrefix+"/*", ws.handleAPI)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	ws.router = r
	ws.server = &http.Server{
		Addr:              ws.httpAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// Handler exposes the routing tree, mainly for tests
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	if ws.limiter != nil {
		ws.limiter.StartCleanup(5*time.Minute, 30*time.Minute)
	}
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	if ws.limiter != nil {
		ws.limiter.Stop()
	}
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": "MediChain API is running",
		"uptime":  time.Since(ws.startTime).Round(time.Second).String(),
		"ledger":  ws.node != nil,
	})
}

// handleDebug provides node debugging information
func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	if ws.node == nil {
		JSONError(w, "Ledger is not enabled on this node", http.StatusServiceUnavailable)
		return
	}

	nodeStatus := "online"
	if ws.node.ConsensusReactor().WaitSync() {
		nodeStatus = "syncing"
	}
	if !ws.node.IsListening() {
		nodeStatus = "offline"
	}

	debugInfo := map[string]interface{}{
		"node_id":     string(ws.node.NodeInfo().ID()),
		"node_status": nodeStatus,
		"p2p_address": ws.node.Config().P2P.ListenAddress,
		"rpc_address": ws.node.Config().RPC.ListenAddress,
		"uptime":      time.Since(ws.startTime).String(),
	}

	outboundPeers, inboundPeers, dialingPeers := ws.node.Switch().NumPeers()
	debugInfo["num_peers_out"] = outboundPeers
	debugInfo["num_peers_in"] = inboundPeers
	debugInfo["num_peers_dialing"] = dialingPeers

	status, err := ws.cometBftRpc.Status(r.Context())
	if err != nil {
		debugInfo["cometbft_error"] = err.Error()
	} else {
		debugInfo["latest_block_height"] = status.SyncInfo.LatestBlockHeight
		debugInfo["latest_block_time"] = status.SyncInfo.LatestBlockTime
		debugInfo["catching_up"] = status.SyncInfo.CatchingUp
	}

	abciInfo, err := ws.cometBftRpc.ABCIInfo(r.Context())
	if err != nil {
		debugInfo["abci_error"] = err.Error()
	} else {
		debugInfo["abci_data"] = abciInfo.Response.Data
		debugInfo["app_version"] = abciInfo.Response.AppVersion
		debugInfo["last_block_height"] = abciInfo.Response.LastBlockHeight
		debugInfo["last_block_app_hash"] = fmt.Sprintf("%X", abciInfo.Response.LastBlockAppHash)
	}

	writeJSON(w, http.StatusOK, debugInfo)
}

// handleAPI dispatches /api requests through the service registry
func (ws *WebServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	request, err := service_registry.ConvertHttpRequestToRequest(r, requestID)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSONError(w, "File too large, maximum size is 10MB", http.StatusRequestEntityTooLarge)
			return
		}
		ws.logger.Error("Failed to convert HTTP request", "request_id", requestID, "err", err)
		JSONError(w, "Failed to read request", http.StatusBadRequest)
		return
	}

	// StripSlashes only rewrites chi's routing path
	if len(request.Path) > 1 {
		request.Path = strings.TrimRight(request.Path, "/")
	}

	response, err := request.GenerateResponse(ws.serviceRegistry)
	if err != nil && response.StatusCode >= http.StatusInternalServerError {
		ws.logger.Error("Request failed", "request_id", requestID, "method", request.Method, "path", request.Path, "err", err)
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(response.StatusCode)
	if response.Body != "" {
		if _, err := w.Write([]byte(response.Body)); err != nil {
			ws.logger.Error("Failed to write response", "request_id", requestID, "err", err)
		}
	}

	ws.logger.Debug("Request served",
		"request_id", requestID,
		"method", request.Method,
		"path", request.Path,
		"status", response.StatusCode,
	)
}

func (ws *WebServer) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, ws.maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(v)
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}{
		Status:  "error",
		Message: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}
