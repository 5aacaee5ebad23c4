package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config is the credential tuple for a server connection.
type Config struct {
	// URL is the server base URL, e.g. "https://erp.example.com".
	URL string `json:"url" validate:"required,url"`

	// Database is the database name to authenticate against.
	Database string `json:"database" validate:"required"`

	// Username is the login name.
	Username string `json:"username" validate:"required"`

	// Password is the login password or API key.
	Password string `json:"password" validate:"required"`

	// Timeout is the per-call timeout. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultTimeout is the per-RPC timeout applied when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// AuthResult is the outcome of a successful authentication.
type AuthResult struct {
	UID       int64  `json:"uid"`
	SessionID string `json:"session_id"`
	Database  string `json:"db"`
}

// SearchOptions refine a search call.
type SearchOptions struct {
	Offset int
	Limit  int
	Order  string
}

// SearchReadOptions refine a search_read call.
type SearchReadOptions struct {
	Fields []string
	Offset int
	Limit  int
	Order  string
}

// Client is the RPC contract the comparator, planner, and applier depend on.
// Implementations must be safe for concurrent use once authenticated; the
// session mutators (Authenticate, Logout) are serialized.
type Client interface {
	// Authenticate opens a session. Any prior session is discarded first.
	Authenticate(ctx context.Context, cfg Config) (*AuthResult, error)

	// Logout discards the session. Safe to call when unauthenticated.
	Logout(ctx context.Context) error

	// Authenticated reports whether a live session exists.
	Authenticated() bool

	// Search returns the ordered ids of records matching the domain.
	Search(ctx context.Context, model string, domain Domain, opts SearchOptions) ([]int64, error)

	// Read returns records in input id order; missing ids are dropped.
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error)

	// SearchRead combines Search and Read in a single round-trip.
	SearchRead(ctx context.Context, model string, domain Domain, opts SearchReadOptions) ([]Record, error)

	// Create creates a record and returns its server-assigned id.
	Create(ctx context.Context, model string, values ValueMap, opctx ValueMap) (int64, error)

	// Write updates the given records, returning true on success.
	Write(ctx context.Context, model string, ids []int64, values ValueMap, opctx ValueMap) (bool, error)

	// Unlink deletes the given records, returning true on success.
	Unlink(ctx context.Context, model string, ids []int64) (bool, error)

	// Call invokes an arbitrary model method.
	Call(ctx context.Context, model, method string, args []interface{}, kwargs ValueMap) (interface{}, error)
}

// Recorder receives per-call instrumentation. Implemented by telemetry.Metrics.
type Recorder interface {
	RecordRPCCall(service, method string, duration time.Duration, err error)
}

// HTTPClient speaks JSON-RPC 2.0 over HTTPS to a single endpoint. Session
// state is carried both in the server-issued cookie and in the uid+password
// tuple resent on every execute_kw call, so either mechanism satisfies the
// server.
type HTTPClient struct {
	httpc    *http.Client
	logger   zerolog.Logger
	recorder Recorder
	tracer   trace.Tracer

	reqID atomic.Int64

	// mu guards the session fields below. Authenticate and Logout take the
	// write lock; every call takes a read snapshot.
	mu      sync.RWMutex
	cfg     Config
	uid     int64
	session string
	live    bool
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = logger.With().Str("component", "rpc-client").Logger()
	}
}

// WithRecorder sets the instrumentation sink.
func WithRecorder(r Recorder) Option {
	return func(c *HTTPClient) { c.recorder = r }
}

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *HTTPClient) { c.httpc = httpc }
}

// NewHTTPClient creates an unauthenticated client.
func NewHTTPClient(opts ...Option) *HTTPClient {
	jar, _ := cookiejar.New(nil)
	c := &HTTPClient{
		httpc:  &http.Client{Jar: jar},
		logger: zerolog.Nop(),
		tracer: otel.Tracer("odrift/rpc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// jsonrpcRequest is the JSON-RPC 2.0 envelope.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonrpcError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpcError   `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// Authenticate opens a session against the authentication endpoint. The
// prior session, if any, is discarded before the attempt; on failure the
// client is left disconnected.
func (c *HTTPClient) Authenticate(ctx context.Context, cfg Config) (*AuthResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Discard any cached session state first.
	c.live = false
	c.uid = 0
	c.session = ""
	if jar, err := cookiejar.New(nil); err == nil {
		c.httpc.Jar = jar
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	params := map[string]interface{}{
		"db":       cfg.Database,
		"login":    cfg.Username,
		"password": cfg.Password,
	}
	raw, err := c.post(ctx, cfg, "/web/session/authenticate", "call", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		// UID is an integer on success and false on rejection, so it
		// cannot be decoded into a numeric type directly.
		UID       interface{} `json:"uid"`
		SessionID string      `json:"session_id"`
		Database  string      `json:"db"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewProtocolError("malformed authenticate result", err)
	}
	uid, ok := AsInt(result.UID)
	if !ok || uid <= 0 {
		// The server answers uid=false for bad credentials rather than a fault.
		return nil, NewAuthError(fmt.Sprintf("authentication rejected for %q on %q", cfg.Username, cfg.Database), nil)
	}

	c.cfg = cfg
	c.uid = uid
	c.session = result.SessionID
	c.live = true

	c.logger.Info().
		Str("url", cfg.URL).
		Str("database", cfg.Database).
		Int64("uid", uid).
		Msg("authenticated")

	db := result.Database
	if db == "" {
		db = cfg.Database
	}
	return &AuthResult{UID: uid, SessionID: result.SessionID, Database: db}, nil
}

// Logout discards the session. Idempotent: calling it on a disconnected
// client is a no-op.
func (c *HTTPClient) Logout(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live {
		return nil
	}
	c.live = false
	c.uid = 0
	c.session = ""
	if jar, err := cookiejar.New(nil); err == nil {
		c.httpc.Jar = jar
	}
	c.logger.Info().Msg("session closed")
	return nil
}

// Authenticated reports whether a live session exists.
func (c *HTTPClient) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.live
}

// Search returns the ordered ids of records matching the domain.
func (c *HTTPClient) Search(ctx context.Context, model string, domain Domain, opts SearchOptions) ([]int64, error) {
	if err := validateModelAndDomain(model, domain); err != nil {
		return nil, err
	}
	kwargs := ValueMap{}
	if opts.Offset > 0 {
		kwargs["offset"] = opts.Offset
	}
	if opts.Limit > 0 {
		kwargs["limit"] = opts.Limit
	}
	if opts.Order != "" {
		kwargs["order"] = opts.Order
	}
	raw, err := c.executeKw(ctx, model, "search", []interface{}{[]interface{}(domain)}, kwargs)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, NewProtocolError("malformed search result", err).WithModel(model)
	}
	return ids, nil
}

// Read returns records in input id order. Ids missing on the server are
// dropped rather than erroring.
func (c *HTTPClient) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	if model == "" {
		return nil, NewInvalidInputError("model name is empty")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	kwargs := ValueMap{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	raw, err := c.executeKw(ctx, model, "read", []interface{}{ids}, kwargs)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, NewProtocolError("malformed read result", err).WithModel(model)
	}
	return orderByInput(records, ids), nil
}

// SearchRead combines Search and Read in a single round-trip.
func (c *HTTPClient) SearchRead(ctx context.Context, model string, domain Domain, opts SearchReadOptions) ([]Record, error) {
	if err := validateModelAndDomain(model, domain); err != nil {
		return nil, err
	}
	kwargs := ValueMap{}
	if len(opts.Fields) > 0 {
		kwargs["fields"] = opts.Fields
	}
	if opts.Offset > 0 {
		kwargs["offset"] = opts.Offset
	}
	if opts.Limit > 0 {
		kwargs["limit"] = opts.Limit
	}
	if opts.Order != "" {
		kwargs["order"] = opts.Order
	}
	raw, err := c.executeKw(ctx, model, "search_read", []interface{}{[]interface{}(domain)}, kwargs)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, NewProtocolError("malformed search_read result", err).WithModel(model)
	}
	return records, nil
}

// Create creates a record and returns its server-assigned id.
func (c *HTTPClient) Create(ctx context.Context, model string, values ValueMap, opctx ValueMap) (int64, error) {
	if model == "" {
		return 0, NewInvalidInputError("model name is empty")
	}
	kwargs := ValueMap{}
	if len(opctx) > 0 {
		kwargs["context"] = opctx
	}
	raw, err := c.executeKw(ctx, model, "create", []interface{}{values}, kwargs)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, NewProtocolError("malformed create result", err).WithModel(model)
	}
	return id, nil
}

// Write updates the given records.
func (c *HTTPClient) Write(ctx context.Context, model string, ids []int64, values ValueMap, opctx ValueMap) (bool, error) {
	if model == "" {
		return false, NewInvalidInputError("model name is empty")
	}
	if len(ids) == 0 {
		return false, NewInvalidInputError("write requires at least one id").WithModel(model)
	}
	kwargs := ValueMap{}
	if len(opctx) > 0 {
		kwargs["context"] = opctx
	}
	raw, err := c.executeKw(ctx, model, "write", []interface{}{ids, values}, kwargs)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, NewProtocolError("malformed write result", err).WithModel(model)
	}
	return ok, nil
}

// Unlink deletes the given records.
func (c *HTTPClient) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	if model == "" {
		return false, NewInvalidInputError("model name is empty")
	}
	if len(ids) == 0 {
		return false, NewInvalidInputError("unlink requires at least one id").WithModel(model)
	}
	raw, err := c.executeKw(ctx, model, "unlink", []interface{}{ids}, nil)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, NewProtocolError("malformed unlink result", err).WithModel(model)
	}
	return ok, nil
}

// Call invokes an arbitrary model method with positional and keyword args.
func (c *HTTPClient) Call(ctx context.Context, model, method string, args []interface{}, kwargs ValueMap) (interface{}, error) {
	if model == "" {
		return nil, NewInvalidInputError("model name is empty")
	}
	if method == "" {
		return nil, NewInvalidInputError("method name is empty").WithModel(model)
	}
	raw, err := c.executeKw(ctx, model, method, args, kwargs)
	if err != nil {
		return nil, err
	}
	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewProtocolError("malformed call result", err).WithModel(model)
	}
	return result, nil
}

// executeKw dispatches a call through the object endpoint, resending the
// uid+password tuple alongside the session cookie.
func (c *HTTPClient) executeKw(ctx context.Context, model, method string, args []interface{}, kwargs ValueMap) (json.RawMessage, error) {
	c.mu.RLock()
	live, cfg, uid := c.live, c.cfg, c.uid
	c.mu.RUnlock()

	if !live {
		return nil, NewNotAuthenticatedError(method).WithModel(model)
	}
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = ValueMap{}
	}

	ctx, span := c.tracer.Start(ctx, "rpc.call", trace.WithAttributes(
		attribute.String("erp.model", model),
		attribute.String("erp.method", method),
	))
	defer span.End()

	params := map[string]interface{}{
		"service": "object",
		"method":  "execute_kw",
		"args": []interface{}{
			cfg.Database, uid, cfg.Password,
			model, method, args, kwargs,
		},
	}

	start := time.Now()
	raw, err := c.post(ctx, cfg, "/jsonrpc", "call", params)
	duration := time.Since(start)

	if c.recorder != nil {
		c.recorder.RecordRPCCall(model, method, duration, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var rerr *Error
		if errors.As(err, &rerr) {
			rerr.Model = model
			rerr.Operation = method
		}
		c.logger.Debug().Err(err).
			Str("model", model).
			Str("method", method).
			Dur("duration", duration).
			Msg("rpc call failed")
		return nil, err
	}

	c.logger.Trace().
		Str("model", model).
		Str("method", method).
		Dur("duration", duration).
		Msg("rpc call")
	return raw, nil
}

// post sends one JSON-RPC envelope and translates transport and fault
// failures into the engine taxonomy.
func (c *HTTPClient) post(ctx context.Context, cfg Config, path, method string, params interface{}) (json.RawMessage, error) {
	endpoint, err := url.JoinPath(cfg.URL, path)
	if err != nil {
		return nil, NewInvalidInputError(fmt.Sprintf("malformed server URL %q", cfg.URL))
	}

	body, err := json.Marshal(jsonrpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.reqID.Add(1),
	})
	if err != nil {
		return nil, NewProtocolError("failed to encode request", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewProtocolError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("request to %s failed", endpoint), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}
	if resp.StatusCode >= 500 {
		return nil, NewNetworkError(fmt.Sprintf("server returned HTTP %d", resp.StatusCode), nil)
	}

	var envelope jsonrpcResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, NewProtocolError("response is not a JSON-RPC envelope", err)
	}
	if envelope.Error != nil {
		return nil, translateFault(envelope.Error)
	}
	return envelope.Result, nil
}

// translateFault maps a JSON-RPC fault into the engine error taxonomy.
func translateFault(fault *jsonrpcError) *Error {
	message := fault.Message
	var dataMessage, exceptionType string
	if fault.Data != nil {
		if m, ok := fault.Data["message"].(string); ok && m != "" {
			dataMessage = m
		}
		if n, ok := fault.Data["name"].(string); ok {
			exceptionType = n
		}
	}
	if dataMessage != "" {
		message = dataMessage
	}

	switch {
	case strings.Contains(exceptionType, "AccessDenied"), strings.Contains(exceptionType, "AccessError"):
		if strings.Contains(exceptionType, "AccessDenied") {
			return NewAuthError(message, nil).WithData(fault.Data)
		}
		return NewRPCError(message, nil).WithCode(ErrCodeAccessDenied).WithData(fault.Data)
	case strings.Contains(exceptionType, "SessionExpired"):
		return NewAuthError(message, nil).WithCode(ErrCodeSessionExpired).WithData(fault.Data)
	case strings.Contains(exceptionType, "ValidationError"):
		return NewRPCError(message, nil).WithCode(ErrCodeValidationFault).WithData(fault.Data)
	case strings.Contains(exceptionType, "IntegrityError"), strings.Contains(exceptionType, "UserError"):
		return NewRPCError(message, nil).WithCode(ErrCodeConstraint).WithData(fault.Data)
	case strings.Contains(exceptionType, "MissingError"):
		return NewRPCError(message, nil).WithCode(ErrCodeMissingRecord).WithData(fault.Data)
	default:
		return NewRPCError(message, nil).WithCode(fmt.Sprintf("%d", fault.Code)).WithData(fault.Data)
	}
}

// orderByInput reorders records to match the input id sequence, dropping
// records for ids the server did not return.
func orderByInput(records []Record, ids []int64) []Record {
	byID := make(map[int64]Record, len(records))
	for _, rec := range records {
		if id, ok := AsInt(rec["id"]); ok {
			byID[id] = rec
		}
	}
	out := make([]Record, 0, len(records))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func validateModelAndDomain(model string, domain Domain) error {
	if model == "" {
		return NewInvalidInputError("model name is empty")
	}
	if err := domain.Validate(); err != nil {
		return err
	}
	return nil
}
