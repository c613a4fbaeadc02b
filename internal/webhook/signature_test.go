package webhook

import (
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

var testSecret = strings.Repeat("s", 32)

func fixedNow(t time.Time) ValidatorOption {
	return WithNow(func() time.Time { return t })
}

func TestValidateConcreteScenario(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewSignatureValidator(testSecret, fixedNow(now))
	body := []byte(`{"type":"ping","event_id":"e1"}`)

	ts := strconv.FormatInt(now.Unix(), 10)
	assert.True(t, v.Validate(ts, body, v.Sign(ts, body)))

	stale := strconv.FormatInt(now.Add(-600*time.Second).Unix(), 10)
	assert.False(t, v.Validate(stale, body, v.Sign(stale, body)))
}

func TestValidateRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewSignatureValidator(testSecret, fixedNow(now))
	body := []byte(`{"type":"message","event_id":"e1"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := v.Sign(ts, body)

	future := strconv.FormatInt(now.Add(301*time.Second).Unix(), 10)
	edge := strconv.FormatInt(now.Add(-300*time.Second).Unix(), 10)

	tests := []struct {
		name      string
		timestamp string
		body      []byte
		signature string
		want      bool
	}{
		{name: "valid", timestamp: ts, body: body, signature: sig, want: true},
		{name: "edge of window", timestamp: edge, body: body, signature: v.Sign(edge, body), want: true},
		{name: "future timestamp", timestamp: future, body: body, signature: v.Sign(future, body)},
		{name: "non numeric timestamp", timestamp: "yesterday", body: body, signature: v.Sign("yesterday", body)},
		{name: "float timestamp", timestamp: ts + ".5", body: body, signature: v.Sign(ts+".5", body)},
		{name: "empty timestamp", timestamp: "", body: body, signature: sig},
		{name: "empty signature", timestamp: ts, body: body, signature: ""},
		{name: "missing version prefix", timestamp: ts, body: body, signature: strings.TrimPrefix(sig, "v0=")},
		{name: "wrong version", timestamp: ts, body: body, signature: "v1=" + strings.TrimPrefix(sig, "v0=")},
		{name: "tampered body", timestamp: ts, body: []byte(`{"type":"message","event_id":"e2"}`), signature: sig},
		{name: "truncated signature", timestamp: ts, body: body, signature: sig[:len(sig)-1]},
		{name: "far future timestamp", timestamp: "1000000000000", body: body, signature: v.Sign("1000000000000", body)},
		{name: "distant future timestamp", timestamp: "9000000000000", body: body, signature: v.Sign("9000000000000", body)},
		{name: "max int64 timestamp", timestamp: strconv.FormatInt(math.MaxInt64, 10), body: body, signature: v.Sign(strconv.FormatInt(math.MaxInt64, 10), body)},
		{name: "min int64 timestamp", timestamp: strconv.FormatInt(math.MinInt64, 10), body: body, signature: v.Sign(strconv.FormatInt(math.MinInt64, 10), body)},
		{name: "timestamp swapped", timestamp: strconv.FormatInt(now.Unix()-1, 10), body: body, signature: sig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Validate(tt.timestamp, tt.body, tt.signature))
		})
	}
}

func TestValidateSingleByteFlips(t *testing.T) {
	gofakeit.Seed(7)
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 25; i++ {
		secret := gofakeit.Password(true, true, true, false, false, 40)
		body := []byte(gofakeit.Sentence(gofakeit.Number(1, 20)))
		offset := time.Duration(gofakeit.Number(-299, 299)) * time.Second
		ts := strconv.FormatInt(now.Add(offset).Unix(), 10)

		v := NewSignatureValidator(secret, fixedNow(now))
		sig := v.Sign(ts, body)
		assert.True(t, v.Validate(ts, body, sig))

		flippedBody := append([]byte(nil), body...)
		flippedBody[gofakeit.Number(0, len(body)-1)] ^= 0x01
		assert.False(t, v.Validate(ts, flippedBody, sig), "flipped body byte")

		flippedSig := []byte(sig)
		pos := gofakeit.Number(3, len(sig)-1)
		if flippedSig[pos] == 'a' {
			flippedSig[pos] = 'b'
		} else {
			flippedSig[pos] = 'a'
		}
		assert.False(t, v.Validate(ts, body, string(flippedSig)), "flipped signature byte")

		otherSecret := []byte(secret)
		otherSecret[0] ^= 0x01
		other := NewSignatureValidator(string(otherSecret), fixedNow(now))
		assert.False(t, other.Validate(ts, body, sig), "flipped secret byte")
	}
}

func TestValidateEmptySecretRejectsEverything(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewSignatureValidator("", fixedNow(now))
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{}`)

	assert.False(t, v.Validate(ts, body, v.Sign(ts, body)))
}

func TestWithTolerance(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewSignatureValidator(testSecret, fixedNow(now), WithTolerance(10*time.Second))
	body := []byte(`{}`)

	old := strconv.FormatInt(now.Add(-11*time.Second).Unix(), 10)
	assert.False(t, v.Validate(old, body, v.Sign(old, body)))

	recent := strconv.FormatInt(now.Add(-9*time.Second).Unix(), 10)
	assert.True(t, v.Validate(recent, body, v.Sign(recent, body)))
}
