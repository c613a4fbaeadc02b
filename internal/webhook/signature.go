package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"hookbridge/internal/constants"
)

// SignatureValidator checks the platform's request signature and the
// freshness of its timestamp. It is safe for concurrent use.
type SignatureValidator struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

type ValidatorOption func(*SignatureValidator)

func WithTolerance(d time.Duration) ValidatorOption {
	return func(v *SignatureValidator) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

func WithNow(now func() time.Time) ValidatorOption {
	return func(v *SignatureValidator) {
		v.now = now
	}
}

func NewSignatureValidator(secret string, opts ...ValidatorOption) *SignatureValidator {
	v := &SignatureValidator{
		secret:    []byte(secret),
		tolerance: constants.DefaultTimestampTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports whether signature is the v0 HMAC of timestamp and body
// and timestamp lies within the tolerance window. It never panics; any
// malformed input is simply invalid.
func (v *SignatureValidator) Validate(timestamp string, body []byte, signature string) (valid bool) {
	defer func() {
		if recover() != nil {
			valid = false
		}
	}()

	if len(v.secret) == 0 || timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	// Compared as whole seconds around now so extreme timestamps cannot
	// saturate or overflow the window.
	tol := int64(v.tolerance / time.Second)
	now := v.now().Unix()
	if ts < now-tol || ts > now+tol {
		return false
	}

	expected := v.Sign(timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign returns the v0 signature header value for timestamp and body.
func (v *SignatureValidator) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(constants.SignatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return constants.SignatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
