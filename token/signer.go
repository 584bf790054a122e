// Package token issues and checks short-lived signed confirmation tokens for
// destructive administrative actions.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const MinSigningKeyLength = 32

var ErrInvalidToken = errors.New("invalid confirmation token")

// ConfirmationClaims bind a token to one requester, one tenant and one purpose.
type ConfirmationClaims struct {
	Tenant  string `json:"tenant"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// HMACSigner signs confirmation tokens with HS256. Its key must differ from
// any key used for session material.
type HMACSigner struct {
	secret  []byte
	nowTime func() time.Time
}

// SignerOption configures an HMACSigner
type SignerOption func(*HMACSigner)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SignerOption {
	return func(h *HMACSigner) {
		h.nowTime = nowFunc
	}
}

// NewHMACSigner creates a new HMAC signer with the given secret
func NewHMACSigner(secret []byte, options ...SignerOption) (*HMACSigner, error) {
	if len(secret) < MinSigningKeyLength {
		return nil, errors.Errorf("[token.NewHMACSigner] signing key must be at least %d bytes", MinSigningKeyLength)
	}
	h := &HMACSigner{
		secret:  append([]byte(nil), secret...),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(h)
	}
	return h, nil
}

// Issue signs a confirmation for subject acting on tenant, valid for ttl.
func (h *HMACSigner) Issue(subject, tenant, purpose string, ttl time.Duration) (string, *ConfirmationClaims, error) {
	now := h.nowTime()
	claims := &ConfirmationClaims{
		Tenant:  tenant,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signed, claims, nil
}

// Parse verifies signature and expiry and returns the claims.
func (h *HMACSigner) Parse(raw string) (*ConfirmationClaims, error) {
	claims := &ConfirmationClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, h.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(h.nowTime),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing jti or sub")
	}
	return claims, nil
}

func (h *HMACSigner) verificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}
