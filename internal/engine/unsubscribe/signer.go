// Package unsubscribe signs unsubscribe links and applies opt-outs.
package unsubscribe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mystore/internal/pkg/errors"
)

const (
	OneClickPath = "/unsubscribe/one-click"
	ConfirmPath  = "/unsubscribe"

	DefaultLinkTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalidSignature = fmt.Errorf("%w: invalid unsubscribe signature", errors.ErrValidationFailed)
	ErrLinkExpired      = fmt.Errorf("%w: unsubscribe link expired", errors.ErrInvalidOrExpiredToken)
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

type Signer struct {
	key     string
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewSigner(key, baseURL string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Signer{key: key, baseURL: strings.TrimRight(baseURL, "/"), ttl: ttl, now: time.Now}
}

func (s *Signer) payload(email, expires string) []byte {
	return []byte(email + "|" + expires)
}

// Values returns the signed query parameters for email.
func (s *Signer) Values(email string) url.Values {
	expires := strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	v := url.Values{}
	v.Set("email", email)
	v.Set("expires", expires)
	v.Set("signature", Sign(s.key, s.payload(email, expires)))
	return v
}

func (s *Signer) OneClickURL(email string) (string, error) {
	if s.key == "" {
		return "", fmt.Errorf("%w: unsubscribe signing key", errors.ErrConfigurationMissing)
	}
	return s.baseURL + OneClickPath + "?" + s.Values(email).Encode(), nil
}

func (s *Signer) ConfirmURL(email string) (string, error) {
	if s.key == "" {
		return "", fmt.Errorf("%w: unsubscribe signing key", errors.ErrConfigurationMissing)
	}
	return s.baseURL + ConfirmPath + "?" + s.Values(email).Encode(), nil
}

// Verify checks the signature before the expiry and returns the signed email.
func (s *Signer) Verify(v url.Values) (string, error) {
	email, expires, signature := v.Get("email"), v.Get("expires"), v.Get("signature")
	if s.key == "" || email == "" || expires == "" || signature == "" {
		return "", ErrInvalidSignature
	}

	want := Sign(s.key, s.payload(email, expires))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(signature))) {
		return "", ErrInvalidSignature
	}

	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return "", ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return "", ErrLinkExpired
	}
	return email, nil
}

// FormToken derives the anti-forgery token embedded in the confirmation form.
func (s *Signer) FormToken(signature string) string {
	return Sign(s.key, []byte("form|"+signature))
}

func (s *Signer) VerifyFormToken(signature, token string) bool {
	return token != "" && hmac.Equal([]byte(s.FormToken(signature)), []byte(token))
}
