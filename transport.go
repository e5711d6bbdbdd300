package rpcpool

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// jsonrpcVersion is the only protocol version the Solana surface speaks.
const jsonrpcVersion = "2.0"

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcErrorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcErrorBody   `json:"error"`
}

// Transport issues JSON-RPC 2.0 calls over HTTP(S). It keeps two
// http.Clients so per-endpoint TLS bypass never weakens verification
// for the endpoints that do not ask for it.
type Transport struct {
	client          *http.Client
	insecureClient  *http.Client
	fallbackTimeout time.Duration
	nextID          func() uint64
}

// NewTransport builds a transport. timeout bounds only calls whose
// context carries no deadline; a context deadline always wins, so a
// per-call timeout above the default is honored rather than silently
// capped. sslVerify=false downgrades every endpoint; otherwise only
// endpoints flagged InsecureSkipVerify use the unverified client.
func NewTransport(timeout time.Duration, sslVerify bool) *Transport {
	insecure := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, // #nosec G402
			MaxIdleConnsPerHost: 8,
		},
	}
	verified := &http.Client{
		Transport: &http.Transport{MaxIdleConnsPerHost: 8},
	}
	if !sslVerify {
		verified = insecure
	}

	var counter uint64
	return &Transport{
		client:          verified,
		insecureClient:  insecure,
		fallbackTimeout: timeout,
		nextID: func() uint64 {
			return atomic.AddUint64(&counter, 1)
		},
	}
}

// Call performs one JSON-RPC invocation against the endpoint and
// returns the raw result payload plus the response headers (for
// rate-limit accounting). Provider errors and throttling come back as
// typed *Error values; the headers are returned even on failure when
// available.
func (t *Transport) Call(ctx context.Context, ep *Endpoint, method string, params interface{}) (json.RawMessage, http.Header, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && t.fallbackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.fallbackTimeout)
		defer cancel()
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonrpcVersion,
		ID:      t.nextID(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.client
	if ep.InsecureSkipVerify {
		client = t.insecureClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, resp.Header, &Error{
			Kind:       KindRateLimit,
			Message:    "provider throttled request",
			Method:     method,
			Endpoint:   ep.Host(),
			StatusCode: resp.StatusCode,
			Timestamp:  time.Now(),
		}
	}
	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, resp.Header, &Error{
			Kind:       KindRPC,
			Message:    fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode),
			Method:     method,
			Endpoint:   ep.Host(),
			StatusCode: resp.StatusCode,
			Timestamp:  time.Now(),
		}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.Header, fmt.Errorf("read rpc response: %w", err)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, resp.Header, &Error{
			Kind:      KindRPC,
			Message:   "malformed rpc envelope",
			Cause:     err,
			Method:    method,
			Endpoint:  ep.Host(),
			Timestamp: time.Now(),
		}
	}
	if envelope.Error != nil {
		return nil, resp.Header, &Error{
			Kind:      classifyRPCCode(envelope.Error.Code, envelope.Error.Message),
			Message:   envelope.Error.Message,
			Method:    method,
			Endpoint:  ep.Host(),
			RPCCode:   envelope.Error.Code,
			Timestamp: time.Now(),
		}
	}
	return envelope.Result, resp.Header, nil
}

// maxResponseBytes bounds a single RPC payload; getBlock responses for
// dense blocks run tens of megabytes, anything past this is abuse.
const maxResponseBytes = 128 << 20
