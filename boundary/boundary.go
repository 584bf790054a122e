// Package boundary encrypts tenant data under the tenant's own key and
// refuses payloads that reference another tenant.
package boundary

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/school-auth/tenantctx"
	"golang.org/x/crypto/chacha20poly1305"
)

const formatVersion byte = 1

var (
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrBoundaryViolation = errors.New("encryption boundary violation")
	ErrNoTenantContext   = errors.New("no tenant context")
)

// Keys that name the owning tenant of a JSON object, matched case-insensitively.
var tenantMarkers = map[string]bool{
	"tenantid":  true,
	"tenant_id": true,
	"schoolid":  true,
	"school_id": true,
	"tenant":    true,
}

// Encrypt seals plaintext with XChaCha20-Poly1305 under the context's key. The
// tenant id is bound as additional data.
// Output is version || nonce || ciphertext+tag.
func Encrypt(plaintext []byte, c *tenantctx.Context) ([]byte, error) {
	aead, err := newAEAD(c)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = formatVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(out, out[1:], plaintext, []byte(c.TenantID)), nil
}

// Decrypt opens data sealed by Encrypt for the same tenant. Any mismatch in
// key, tenant or bytes yields ErrDecryptionFailed and no plaintext.
func Decrypt(ciphertext []byte, c *tenantctx.Context) ([]byte, error) {
	aead, err := newAEAD(c)
	if err != nil {
		return nil, err
	}
	headerLen := 1 + aead.NonceSize()
	if len(ciphertext) < headerLen+aead.Overhead() || ciphertext[0] != formatVersion {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := aead.Open(nil, ciphertext[1:headerLen], ciphertext[headerLen:], []byte(c.TenantID))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newAEAD(c *tenantctx.Context) (cipher.AEAD, error) {
	if c == nil || c.TenantID == "" {
		return nil, ErrNoTenantContext
	}
	if len(c.EncryptionKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("tenant %s: invalid encryption key length %d", c.TenantID, len(c.EncryptionKey))
	}
	return chacha20poly1305.NewX(c.EncryptionKey)
}

// ValidateBoundary rejects data that is not exactly one JSON value or that
// carries a tenant marker naming any tenant other than c's.
func ValidateBoundary(data []byte, c *tenantctx.Context) error {
	if c == nil || c.TenantID == "" {
		return ErrNoTenantContext
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: payload is not JSON", ErrBoundaryViolation)
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON value", ErrBoundaryViolation)
	}
	return scan(doc, "$", c.TenantID)
}

func scan(node any, path, tenantID string) error {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := path + "." + key
			if tenantMarkers[strings.ToLower(key)] {
				if id, ok := scalarString(child); ok && id != tenantID {
					return fmt.Errorf("%w: %s references tenant %q", ErrBoundaryViolation, childPath, id)
				}
			}
			if err := scan(child, childPath, tenantID); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range v {
			if err := scan(child, fmt.Sprintf("%s[%d]", path, i), tenantID); err != nil {
				return err
			}
		}
	}
	return nil
}

// scalarString is the text form of a JSON scalar. Objects, arrays and null
// are not tenant ids.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case bool:
		return fmt.Sprint(s), true
	default:
		return "", false
	}
}

// SealJSON marshals v, checks it stays inside the tenant and encrypts it.
func SealJSON(v any, c *tenantctx.Context) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling payload: %w", err)
	}
	if err := ValidateBoundary(data, c); err != nil {
		return nil, err
	}
	return Encrypt(data, c)
}

// OpenJSON decrypts, validates and unmarshals into v.
func OpenJSON(ciphertext []byte, c *tenantctx.Context, v any) error {
	data, err := Decrypt(ciphertext, c)
	if err != nil {
		return err
	}
	if err := ValidateBoundary(data, c); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshalling payload: %w", err)
	}
	return nil
}
