package srvreg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/medichain/auth"
	"github.com/ahmadzakiakmal/medichain/events"
	"github.com/ahmadzakiakmal/medichain/ledger"
	"github.com/ahmadzakiakmal/medichain/metrics"
	"github.com/ahmadzakiakmal/medichain/payment"
	"github.com/ahmadzakiakmal/medichain/recognition"
	"github.com/ahmadzakiakmal/medichain/repository"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Request represents the client's incoming HTTP request
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Query      url.Values        `json:"query,omitempty"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Timestamp  time.Time         `json:"timestamp"`

	// RawBody is the body exactly as received, used for signatures and uploads
	RawBody []byte `json:"-"`
	// Params holds the values of the ":name" segments of the matched route
	Params map[string]string `json:"-"`
	// Caller is set on routes that require authentication
	Caller *Caller `json:"-"`

	ctx context.Context
}

// Caller is the authenticated hospital making the request
type Caller struct {
	ID            string
	Email         string
	WalletAddress string
}

// Context returns the request context, never nil
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext sets the context used by handlers for outbound calls
func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// Header returns the first value of a request header, case-insensitively
func (r *Request) Header(name string) string {
	return r.Headers[http.CanonicalHeaderKey(name)]
}

// Response represents the computed response from a server
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ServiceHandler is a function type for service handlers
type ServiceHandler func(*Request) (*Response, error)

// RouteKey is used to uniquely identify a route
type RouteKey struct {
	Method string
	Path   string
}

// Route is a registered handler and its matching rules
type Route struct {
	Method       string
	Pattern      string
	IsExact      bool
	RequiresAuth bool
	Handler      ServiceHandler

	segments []string
	literals int
}

// Dependencies are the collaborators the handlers need.
// Gateway, Recognizer, Ledger and Metrics may be nil.
type Dependencies struct {
	Repository *repository.Repository
	Hasher     auth.PasswordHasher
	Tokens     *auth.TokenManager
	Gateway    payment.Gateway
	// PaymentKeySecret signs checkout signatures, WebhookSecret signs webhook bodies
	PaymentKeySecret   string
	WebhookSecret      string
	Currency           string
	Recognizer         recognition.Recognizer
	RecognitionTimeout time.Duration
	Notifier           *events.Notifier
	Ledger             *ledger.Client
	Metrics            *metrics.Metrics
	Logger             cmtlog.Logger
	Now                func() time.Time
}

// ServiceRegistry manages all service handlers
type ServiceRegistry struct {
	routes      []*Route
	exactRoutes map[RouteKey]*Route
	mu          sync.RWMutex

	repository         *repository.Repository
	hasher             auth.PasswordHasher
	tokens             *auth.TokenManager
	gateway            payment.Gateway
	paymentKeySecret   string
	webhookSecret      string
	currency           string
	recognizer         recognition.Recognizer
	recognitionTimeout time.Duration
	notifier           *events.Notifier
	ledger             *ledger.Client
	metrics            *metrics.Metrics
	logger             cmtlog.Logger
	now                func() time.Time
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(deps Dependencies) *ServiceRegistry {
	logger := deps.Logger
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	logger = logger.With("module", "srvreg")

	notifier := deps.Notifier
	if notifier == nil {
		notifier = events.NewNotifier(nil, nil, 0, logger)
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewArgon2Hasher(auth.DefaultArgon2Params)
	}
	currency := deps.Currency
	if currency == "" {
		currency = payment.DefaultCurrency
	}
	recognitionTimeout := deps.RecognitionTimeout
	if recognitionTimeout <= 0 {
		recognitionTimeout = 30 * time.Second
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &ServiceRegistry{
		exactRoutes:        make(map[RouteKey]*Route),
		repository:         deps.Repository,
		hasher:             hasher,
		tokens:             deps.Tokens,
		gateway:            deps.Gateway,
		paymentKeySecret:   deps.PaymentKeySecret,
		webhookSecret:      deps.WebhookSecret,
		currency:           currency,
		recognizer:         deps.Recognizer,
		recognitionTimeout: recognitionTimeout,
		notifier:           notifier,
		ledger:             deps.Ledger,
		metrics:            deps.Metrics,
		logger:             logger,
		now:                now,
	}
}

// ConvertHttpRequestToRequest converts an http.Request to Request.
// The body is read in full; callers bound its size with http.MaxBytesReader.
func ConvertHttpRequestToRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	var raw []byte
	if r.Body != nil {
		var err error
		raw, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
	}

	body := ""
	if !strings.HasPrefix(headers["Content-Type"], "multipart/") {
		body = compactJSON(string(raw))
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       body,
		RawBody:    raw,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		Timestamp:  time.Now(),
		ctx:        r.Context(),
	}, nil
}

// RegisterHandler registers a new service handler
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath, requiresAuth bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	rt := &Route{
		Method:       strings.ToUpper(method),
		Pattern:      path,
		IsExact:      isExactPath,
		RequiresAuth: requiresAuth,
		Handler:      handler,
		segments:     strings.Split(path, "/"),
	}
	for _, seg := range rt.segments {
		if !strings.HasPrefix(seg, ":") {
			rt.literals++
		}
	}

	if isExactPath {
		sr.exactRoutes[RouteKey{Method: rt.Method, Path: path}] = rt
		return
	}
	sr.routes = append(sr.routes, rt)
}

// Match finds the route for a method and path along with its parameters.
// Exact routes win, then the pattern with the most literal segments,
// then the earliest registered one.
func (sr *ServiceRegistry) Match(method, path string) (*Route, map[string]string, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	method = strings.ToUpper(method)
	if rt, ok := sr.exactRoutes[RouteKey{Method: method, Path: path}]; ok {
		return rt, map[string]string{}, true
	}

	var (
		best       *Route
		bestParams map[string]string
	)
	for _, rt := range sr.routes {
		if rt.Method != method {
			continue
		}
		params, ok := matchPath(rt.segments, path)
		if !ok {
			continue
		}
		if best == nil || rt.literals > best.literals {
			best, bestParams = rt, params
		}
	}
	return best, bestParams, best != nil
}

// GetHandlerForPath finds the appropriate handler for a given path and a boolean of whether or not the handler was found
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (ServiceHandler, bool) {
	rt, _, ok := sr.Match(method, path)
	if !ok {
		return nil, false
	}
	return rt.Handler, true
}

// matchPath does simple pattern matching for routes.
// It supports patterns like "/user/:id" matching "/user/123"
func matchPath(patternParts []string, path string) (map[string]string, bool) {
	pathParts := strings.Split(path, "/")
	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i := range patternParts {
		if strings.HasPrefix(patternParts[i], ":") {
			if pathParts[i] == "" {
				return nil, false
			}
			value, err := url.PathUnescape(pathParts[i])
			if err != nil {
				return nil, false
			}
			params[patternParts[i][1:]] = value
			continue
		}

		if patternParts[i] != pathParts[i] {
			return nil, false
		}
	}

	return params, true
}

// GenerateResponse executes the request and generates a response.
// The returned response is always usable; the error is the handler's,
// kept for logging.
func (req *Request) GenerateResponse(services *ServiceRegistry) (*Response, error) {
	start := time.Now()

	rt, params, found := services.Match(req.Method, req.Path)
	if !found {
		resp := services.errorResponse(NotFound(fmt.Sprintf("Route not found: %s %s", req.Method, req.Path)))
		services.metrics.ObserveRequest(req.Method, "unmatched", resp.StatusCode, time.Since(start))
		return resp, nil
	}
	req.Params = params

	var (
		resp *Response
		err  error
	)
	if rt.RequiresAuth {
		req.Caller, err = services.authenticate(req)
	}
	if err == nil {
		resp, err = rt.Handler(req)
	}
	if err != nil {
		resp = services.errorResponse(err)
	}

	services.metrics.ObserveRequest(req.Method, rt.Pattern, resp.StatusCode, time.Since(start))
	return resp, err
}

func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		// not JSON, keep it as sent
		return strings.TrimSpace(body)
	}
	return buf.String()
}
