package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultExternalHTTPTimeout = 90 * time.Second

// RequestIDHeader is set on every outgoing request.
const RequestIDHeader = "X-Request-ID"

var externalHTTPClient = &http.Client{
	Timeout:   defaultExternalHTTPTimeout,
	Transport: &requestIDTransport{},
}

// ExternalHTTPClient returns the shared client used for the persistence
// service.
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

type requestIDKey struct{}

// WithRequestID attaches id to ctx so the outgoing request carries it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewRequestID returns a fresh random id.
func NewRequestID() string {
	return uuid.NewString()
}

type requestIDTransport struct {
	base http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get(RequestIDHeader) != "" {
		return base.RoundTrip(req)
	}
	id := RequestID(req.Context())
	if id == "" {
		id = NewRequestID()
	}
	req = req.Clone(req.Context())
	req.Header.Set(RequestIDHeader, id)
	return base.RoundTrip(req)
}
