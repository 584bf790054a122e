// Package mfa gates logins behind a second factor: RFC 6238 TOTP codes with
// single-use recovery codes as fallback.
package mfa

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/school-auth/audit"
	"github.com/jrsteele09/school-auth/identity"
	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIssuer     = "School Auth"
	RecoveryCodeCount = 10

	totpPeriod          = 30
	totpSkew            = 1
	recoveryGroupLength = 5
	recoveryAlphabet    = "abcdefghijklmnopqrstuvwxyz234567"
)

// Enrollment is returned once when MFA is enabled. Neither the secret nor the
// recovery codes can be retrieved again.
type Enrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURL string   `json:"provisioning_url"`
	RecoveryCodes   []string `json:"recovery_codes"`
}

// Gate decides whether a login needs a second factor and validates it.
type Gate struct {
	repo     SecretRepo
	recorder audit.Recorder
	issuer   string
	nowTime  func() time.Time
}

// GateOption configures a Gate
type GateOption func(*Gate)

func WithIssuer(issuer string) GateOption {
	return func(g *Gate) {
		if issuer != "" {
			g.issuer = issuer
		}
	}
}

// WithRecorder sets where mfa_enabled and recovery_code_used events go.
func WithRecorder(r audit.Recorder) GateOption {
	return func(g *Gate) {
		g.recorder = r
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) GateOption {
	return func(g *Gate) {
		g.nowTime = nowFunc
	}
}

func NewGate(repo SecretRepo, options ...GateOption) (*Gate, error) {
	if repo == nil {
		return nil, errors.New("[mfa.NewGate] secret repo is required")
	}
	g := &Gate{
		repo:    repo,
		issuer:  DefaultIssuer,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// IsRequired reports whether a login for ident must be stopped to ask for a
// second factor: MFA is on for the identity and no token was supplied.
func (g *Gate) IsRequired(ctx context.Context, ident *identity.Identity, token string) (bool, error) {
	if strings.TrimSpace(token) != "" {
		return false, nil
	}
	return g.Enabled(ctx, ident)
}

// Enabled reports whether ident has MFA switched on, either flagged by the
// credential store or enrolled through this gate.
func (g *Gate) Enabled(ctx context.Context, ident *identity.Identity) (bool, error) {
	if ident.MFAEnabled {
		return true, nil
	}
	_, err := g.repo.Get(ctx, ident.ID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Gate.Enabled]")
	}
	return true, nil
}

// Validate checks token as a TOTP code, or as a recovery code when it is not
// six digits. Each TOTP step and each recovery code is accepted at most once.
func (g *Gate) Validate(ctx context.Context, identityID, token string) (bool, error) {
	secret, err := g.repo.Get(ctx, identityID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Gate.Validate]")
	}

	token = strings.TrimSpace(token)
	if isTOTPCode(token) {
		step, ok := matchTOTPStep(token, secret.Secret, g.nowTime().UTC())
		if !ok {
			return false, nil
		}
		accepted, err := g.repo.AcceptTOTPStep(ctx, identityID, step)
		if err != nil {
			return false, errors.Wrap(err, "[Gate.Validate] recording totp step")
		}
		if !accepted {
			log.Warn().Str("identity_id", identityID).Int64("step", step).Msg("rejected reused TOTP code")
		}
		return accepted, nil
	}

	consumed, err := g.repo.ConsumeRecoveryCode(ctx, identityID, RecoveryDigest(token))
	if err != nil {
		return false, errors.Wrap(err, "[Gate.Validate] consuming recovery code")
	}
	if consumed {
		g.record(ctx, audit.SecurityEvent{
			Type:       audit.EventRecoveryCodeUsed,
			IdentityID: identityID,
			TenantID:   secret.TenantID,
			Severity:   audit.SeverityMedium,
		})
	}
	return consumed, nil
}

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// matchTOTPStep returns the time step within the skew window whose code
// equals token, checking the latest step first.
func matchTOTPStep(token, secret string, now time.Time) (int64, bool) {
	current := now.Unix() / totpPeriod
	for step := current + totpSkew; step >= current-totpSkew; step-- {
		code, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0).UTC(), totpOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(token)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// Enable enrolls ident with a fresh secret and recovery codes, replacing any
// earlier enrollment.
func (g *Gate) Enable(ctx context.Context, ident *identity.Identity) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: ident.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Gate.Enable] generating secret")
	}

	codes := make([]string, RecoveryCodeCount)
	digests := make([]string, RecoveryCodeCount)
	for i := range codes {
		code, err := newRecoveryCode()
		if err != nil {
			return nil, errors.Wrap(err, "[Gate.Enable] generating recovery code")
		}
		codes[i] = code
		digests[i] = RecoveryDigest(code)
	}

	err = g.repo.Upsert(ctx, &Secret{
		IdentityID:      ident.ID,
		TenantID:        ident.TenantID,
		Secret:          key.Secret(),
		RecoveryDigests: digests,
		EnabledAt:       g.nowTime().UTC(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Gate.Enable] storing secret")
	}

	g.record(ctx, audit.SecurityEvent{
		Type:       audit.EventMFAEnabled,
		IdentityID: ident.ID,
		TenantID:   ident.TenantID,
		Severity:   audit.SeverityMedium,
	})
	log.Info().Str("identity_id", ident.ID).Str("tenant_id", ident.TenantID).Msg("mfa enabled")

	return &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURL: key.URL(),
		RecoveryCodes:   codes,
	}, nil
}

// Disable removes the enrollment
func (g *Gate) Disable(ctx context.Context, identityID string) error {
	if err := g.repo.Delete(ctx, identityID); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return errors.Wrap(err, "[Gate.Disable]")
	}
	return nil
}

func (g *Gate) record(ctx context.Context, ev audit.SecurityEvent) {
	if g.recorder != nil {
		g.recorder.Record(ctx, ev)
	}
}

// RecoveryDigest is the stored form of a recovery code.
func RecoveryDigest(code string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

func isTOTPCode(token string) bool {
	if len(token) != 6 {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func newRecoveryCode() (string, error) {
	buf := make([]byte, recoveryGroupLength*2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	chars := make([]byte, len(buf))
	for i, b := range buf {
		chars[i] = recoveryAlphabet[int(b)%len(recoveryAlphabet)]
	}
	return fmt.Sprintf("%s-%s", chars[:recoveryGroupLength], chars[recoveryGroupLength:]), nil
}
