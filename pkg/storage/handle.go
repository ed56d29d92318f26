package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HandleSigner creates and validates opaque preview handles bound to an artifact name.
type HandleSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewHandleSigner constructs a signer with the provided secret and TTL.
func NewHandleSigner(secret string, ttl time.Duration) *HandleSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &HandleSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed handle referencing the artifact name.
func (s *HandleSigner) Generate(name string) (string, time.Time, error) {
	if name == "" {
		return "", time.Time{}, fmt.Errorf("artifact name required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(name))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	handle := strings.Join([]string{encoded, ts, s.sign(encoded, ts)}, ".")
	return handle, expiresAt, nil
}

// Parse validates a handle and returns the artifact name it references.
// When allowExpired is true, the timestamp check is skipped.
func (s *HandleSigner) Parse(handle string, allowExpired bool) (string, time.Time, error) {
	parts := strings.Split(handle, ".")
	if len(parts) != 3 {
		return "", time.Time{}, fmt.Errorf("invalid handle format")
	}
	encoded, ts, signature := parts[0], parts[1], parts[2]

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	if !hmac.Equal([]byte(s.sign(encoded, ts)), []byte(signature)) {
		return "", time.Time{}, fmt.Errorf("invalid handle signature")
	}
	name, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("decode handle: %w", err)
	}
	expiresAt := time.Unix(expUnix, 0)
	if !allowExpired && time.Now().After(expiresAt) {
		return "", time.Time{}, fmt.Errorf("handle expired")
	}
	return string(name), expiresAt, nil
}

func (s *HandleSigner) sign(encoded, ts string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(encoded + "|" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
