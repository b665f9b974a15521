package srvreg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/medichain/auth"
	"github.com/ahmadzakiakmal/medichain/metrics"
	"github.com/ahmadzakiakmal/medichain/payment"
	"github.com/ahmadzakiakmal/medichain/recognition"
	"github.com/ahmadzakiakmal/medichain/repository"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testKeySecret     = "key-secret"
	testWebhookSecret = "webhook-secret"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	calls []payment.OrderRequest
	err   error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.GatewayOrder, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payment.GatewayOrder{
		ID:       fmt.Sprintf("order_gw_%d", len(g.calls)),
		Amount:   payment.ToMinorUnits(req.Amount),
		Currency: req.Currency,
	}, nil
}

type fakeRecognizer struct {
	analysis *recognition.Analysis
	err      error
}

func (f *fakeRecognizer) Recognize(context.Context, recognition.Image) (*recognition.Analysis, error) {
	return f.analysis, f.err
}

type testEnv struct {
	sr      *ServiceRegistry
	repo    *repository.Repository
	gateway *fakeGateway
	metrics *metrics.Metrics
}

type envOption func(*Dependencies)

func newTestEnv(t *testing.T, repoOpts repository.Options, opts ...envOption) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewRepository(db, cmtlog.NewNopLogger(), repoOpts)
	require.NoError(t, repo.Migrate())

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	gateway := &fakeGateway{}
	m := metrics.New()
	deps := Dependencies{
		Repository:       repo,
		Hasher:           auth.NewArgon2Hasher(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		Tokens:           tokens,
		Gateway:          gateway,
		PaymentKeySecret: testKeySecret,
		WebhookSecret:    testWebhookSecret,
		Metrics:          m,
		Logger:           cmtlog.NewNopLogger(),
		Now:              func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&deps)
	}

	sr := NewServiceRegistry(deps)
	sr.RegisterDefaultServices()
	return &testEnv{sr: sr, repo: repo, gateway: gateway, metrics: m}
}

// call runs a JSON request through the registry
func (e *testEnv) call(t *testing.T, method, path, token string, body interface{}) *Response {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}

	httpReq := httptest.NewRequest(method, path, bytes.NewReader(raw))
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(t, httpReq)
}

func (e *testEnv) do(t *testing.T, httpReq *http.Request) *Response {
	t.Helper()
	req, err := ConvertHttpRequestToRequest(httpReq, uuid.NewString())
	require.NoError(t, err)
	resp, _ := req.GenerateResponse(e.sr)
	require.NotNil(t, resp)
	return resp
}

type hospitalSession struct {
	ID     string
	Wallet string
	Token  string
}

func (e *testEnv) register(t *testing.T, name string, lat, lon float64) hospitalSession {
	t.Helper()
	wallet := "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")[:40]
	resp := e.call(t, "POST", "/api/auth/register", "", map[string]interface{}{
		"name":          name,
		"email":         strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		"password":      "secret123",
		"walletAddress": wallet,
		"latitude":      lat,
		"longitude":     lon,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	var out struct {
		Data authPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	return hospitalSession{ID: out.Data.ID, Wallet: wallet, Token: out.Data.Token}
}

func decodeData(t *testing.T, resp *Response, out interface{}) {
	t.Helper()
	var env struct {
		Status  string          `json:"status"`
		Results *int            `json:"results"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &env), resp.Body)
	require.Equal(t, statusSuccess, env.Status, resp.Body)
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func errorMessage(t *testing.T, resp *Response) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body), resp.Body)
	assert.Equal(t, statusError, body.Status)
	return body.Message
}

func multipartImage(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename)}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestMatchPrefersExactThenMostSpecific(t *testing.T) {
	sr := NewServiceRegistry(Dependencies{})
	handler := func(name string) ServiceHandler {
		return func(*Request) (*Response, error) { return &Response{Body: name}, nil }
	}
	sr.RegisterHandler("GET", "/orders/:id", false, false, handler("by-id"))
	sr.RegisterHandler("GET", "/orders/my-orders", true, false, handler("mine"))
	sr.RegisterHandler("GET", "/a/:x/c", false, false, handler("one-literal"))
	sr.RegisterHandler("GET", "/a/b/c", false, false, handler("two-literals"))

	rt, params, ok := sr.Match("get", "/orders/my-orders")
	require.True(t, ok)
	assert.True(t, rt.IsExact)
	assert.Empty(t, params)

	rt, params, ok = sr.Match("GET", "/orders/abc%20def")
	require.True(t, ok)
	assert.Equal(t, "/orders/:id", rt.Pattern)
	assert.Equal(t, "abc def", params["id"])

	rt, _, ok = sr.Match("GET", "/a/b/c")
	require.True(t, ok)
	assert.Equal(t, "/a/b/c", rt.Pattern)

	_, _, ok = sr.Match("POST", "/orders/1")
	assert.False(t, ok)
	_, _, ok = sr.Match("GET", "/orders/")
	assert.False(t, ok)
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t, repository.Options{})
	resp := env.call(t, "GET", "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, errorMessage(t, resp), "Route not found")
}

func TestAuthenticationFailures(t *testing.T) {
	env := newTestEnv(t, repository.Options{})

	resp := env.call(t, "GET", "/api/hospitals/me/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, no token", errorMessage(t, resp))

	resp = env.call(t, "GET", "/api/hospitals/me/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, invalid token", errorMessage(t, resp))

	// valid signature for a hospital that does not exist
	token, err := env.sr.tokens.Issue(uuid.NewString(), "ghost@example.com")
	require.NoError(t, err)
	resp = env.call(t, "GET", "/api/hospitals/me/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFromRepositoryErrorStatuses(t *testing.T) {
	cases := map[string]int{
		repository.ErrCodeNotFound:         http.StatusNotFound,
		repository.ErrCodeForbidden:        http.StatusForbidden,
		repository.ErrCodeInvalidState:     http.StatusConflict,
		repository.ErrCodeInvalidInput:     http.StatusBadRequest,
		repository.ErrCodeDuplicate:        http.StatusBadRequest,
		repository.PgErrUniqueViolation:    http.StatusConflict,
		repository.PgErrForeignKeyViolation: http.StatusBadRequest,
		repository.ErrCodeDatabase:         http.StatusInternalServerError,
	}
	for code, status := range cases {
		appErr := fromRepositoryError(&repository.RepositoryError{Code: code, Message: "m", Detail: "secret detail"})
		assert.Equal(t, status, appErr.StatusCode, code)
	}
}

func TestInternalErrorsDoNotLeakDetails(t *testing.T) {
	env := newTestEnv(t, repository.Options{})
	resp := env.sr.errorResponse(fmt.Errorf("pq: relation secret_table does not exist"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error", errorMessage(t, resp))
}

func TestInvalidJSONIsRejectedBeforeMutation(t *testing.T) {
	env := newTestEnv(t, repository.Options{})
	resp := env.call(t, "POST", "/api/auth/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	hospitals, repoErr := env.repo.ListHospitals()
	require.Nil(t, repoErr)
	assert.Empty(t, hospitals)
}

func TestParseExpiry(t *testing.T) {
	got, err := parseExpiry("2025-12-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), got)

	got, err = parseExpiry("2025-12-31T10:00:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 31, 4, 30, 0, 0, time.UTC), got)

	_, err = parseExpiry("31/12/2025")
	assert.Error(t, err)
}
