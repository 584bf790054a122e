// Package backend carries a session's tenant context to downstream services.
package backend

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/school-auth/boundary"
	"github.com/jrsteele09/school-auth/tenantctx"
)

// ErrNoTenantContext is returned for outbound requests made outside a session.
var ErrNoTenantContext = errors.New("outbound request has no tenant context")

// MaxInspectedBody caps the JSON response bodies checked against the tenant boundary.
// Larger JSON bodies are refused.
const MaxInspectedBody = 8 << 20

var isolationHeaders = []string{
	tenantctx.HeaderTenantID,
	tenantctx.HeaderTenantDataKey,
	tenantctx.HeaderIsolationLevel,
}

// Transport wraps http.RoundTripper and sets the tenant isolation headers
// from the request context. Caller-supplied values are always replaced.
// JSON responses that reference another tenant are dropped. Bodies without a
// declared type are treated as JSON when they start like an object or array.
type Transport struct {
	Base http.RoundTripper
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base}
}

// NewClient returns an http.Client using a tenant-aware Transport.
func NewClient(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: NewTransport(base)}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tc, ok := tenantctx.FromContext(req.Context())
	if !ok || tc.TenantID == "" {
		log.Warn().Str("host", req.URL.Host).Str("method", req.Method).Msg("blocked backend request without tenant context")
		return nil, ErrNoTenantContext
	}

	// RoundTrippers must not modify the caller's request.
	out := req.Clone(req.Context())
	for _, h := range isolationHeaders {
		out.Header.Del(h)
	}
	for h, v := range tenantctx.Headers(tc) {
		out.Header.Set(h, v)
	}
	resp, err := t.Base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp, tc); err != nil {
		log.Error().Err(err).
			Str("tenant_id", tc.TenantID).
			Str("host", req.URL.Host).
			Str("severity", "critical").
			Msg("backend response crossed tenant boundary")
		return nil, err
	}
	return resp, nil
}

// checkResponse validates a JSON body and puts it back for the caller.
func checkResponse(resp *http.Response, tc *tenantctx.Context) error {
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	declared := isJSONMediaType(mediaType)
	if !declared && knownNonJSON(mediaType) {
		return nil
	}

	head, err := io.ReadAll(io.LimitReader(resp.Body, MaxInspectedBody+1))
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("reading backend response: %w", err)
	}
	if !declared && !looksLikeJSON(head) {
		resp.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(head), resp.Body), Closer: resp.Body}
		return nil
	}
	resp.Body.Close()
	if len(head) > MaxInspectedBody {
		return fmt.Errorf("%w: response larger than %d bytes", boundary.ErrBoundaryViolation, MaxInspectedBody)
	}
	if len(bytes.TrimSpace(head)) > 0 {
		if err := boundary.ValidateBoundary(head, tc); err != nil {
			return err
		}
	}
	resp.Body = io.NopCloser(bytes.NewReader(head))
	return nil
}

// replayBody returns the bytes already read, then the rest of the original body.
type replayBody struct {
	io.Reader
	io.Closer
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || mediaType == "text/json" || strings.HasSuffix(mediaType, "+json")
}

// knownNonJSON reports media types whose bodies are never inspected. An
// empty or unrecognised type is sniffed instead.
func knownNonJSON(mediaType string) bool {
	switch {
	case mediaType == "", mediaType == "application/octet-stream", mediaType == "text/plain":
		return false
	case strings.HasPrefix(mediaType, "image/"), strings.HasPrefix(mediaType, "audio/"),
		strings.HasPrefix(mediaType, "video/"), strings.HasPrefix(mediaType, "font/"):
		return true
	case mediaType == "application/pdf", mediaType == "application/zip":
		return true
	default:
		return false
	}
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
