// Package signing implements the webhook payload signature scheme:
// HMAC-SHA256 over "{timestamp}.{payload}", carried in a header of the form
// "t=<unix seconds>,v1=<hex digest>".
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned for every verification failure. Malformed
// headers, stale timestamps, and digest mismatches are deliberately
// indistinguishable to callers.
var ErrInvalidSignature = errors.New("signing: invalid signature")

// Sign computes the signature header value for payload using secret. A zero
// timestamp means now.
func Sign(payload []byte, secret string, timestamp int64) string {
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}
	return fmt.Sprintf("t=%d,v1=%s", timestamp, digest(payload, secret, timestamp))
}

// Verify checks a signature header produced by Sign. When tolerance > 0 the
// signed timestamp must be within tolerance of now, rejecting replays of old
// payloads. The digest comparison is constant-time, and the digest is
// computed even when the timestamp is already out of tolerance so a stale
// rejection takes the same work as a mismatch rejection.
func Verify(payload []byte, header, secret string, tolerance time.Duration) error {
	ts, sig, err := parseHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}

	expected := digest(payload, secret, ts)
	match := hmac.Equal([]byte(expected), []byte(sig))

	fresh := true
	if tolerance > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		fresh = age <= tolerance
	}

	if !match || !fresh {
		return ErrInvalidSignature
	}
	return nil
}

func digest(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseHeader(header string) (ts int64, sig string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return 0, "", fmt.Errorf("malformed element %q", part)
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", err
			}
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", errors.New("missing t or v1")
	}
	return ts, sig, nil
}
