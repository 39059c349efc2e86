package store

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	auth "github.com/goliatone/go-storefront-auth"
)

// tokenProvider derives tokens from the user's security stamp, rotating
// the stamp invalidates every outstanding token.
type tokenProvider struct {
	key      []byte
	lifespan time.Duration
	codeStep time.Duration
}

const codeDigits = 6

// binding is the mutable account state a token is tied to. Email
// confirmation also binds the confirmed flag so a link works once.
func binding(user *auth.User, purpose auth.TokenPurpose) string {
	b := user.ID.String() + "|" + string(purpose) + "|" + user.SecurityStamp
	if purpose == auth.PurposeEmailConfirmation {
		b += "|" + strconv.FormatBool(user.EmailConfirmed)
	}
	return b
}

func (p tokenProvider) mac(parts ...[]byte) []byte {
	m := hmac.New(sha256.New, p.key)
	for _, part := range parts {
		m.Write(part)
	}
	return m.Sum(nil)
}

// issue returns base64url(expiry || hmac(binding, expiry))
func (p tokenProvider) issue(user *auth.User, purpose auth.TokenPurpose, now time.Time) string {
	expiry := make([]byte, 8)
	binary.BigEndian.PutUint64(expiry, uint64(now.Add(p.lifespan).Unix()))

	sig := p.mac([]byte(binding(user, purpose)), expiry)
	return base64.RawURLEncoding.EncodeToString(append(expiry, sig...))
}

func (p tokenProvider) verify(user *auth.User, purpose auth.TokenPurpose, token string, now time.Time) bool {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != 8+sha256.Size {
		return false
	}

	expiry, sig := raw[:8], raw[8:]
	if now.Unix() > int64(binary.BigEndian.Uint64(expiry)) {
		return false
	}

	return hmac.Equal(sig, p.mac([]byte(binding(user, purpose)), expiry))
}

// code is a numeric one time code for the time step containing now
func (p tokenProvider) code(user *auth.User, purpose auth.TokenPurpose, now time.Time) string {
	return p.codeAt(user, purpose, now.Unix()/int64(p.codeStep.Seconds()))
}

func (p tokenProvider) codeAt(user *auth.User, purpose auth.TokenPurpose, step int64) string {
	counter := make([]byte, 8)
	binary.BigEndian.PutUint64(counter, uint64(step))

	sum := p.mac([]byte(binding(user, purpose)), counter)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", codeDigits, value%1000000)
}

// verifyCode accepts the current and the previous step
func (p tokenProvider) verifyCode(user *auth.User, purpose auth.TokenPurpose, code string, now time.Time) bool {
	step := now.Unix() / int64(p.codeStep.Seconds())
	for _, s := range []int64{step, step - 1} {
		if hmac.Equal([]byte(code), []byte(p.codeAt(user, purpose, s))) {
			return true
		}
	}
	return false
}
