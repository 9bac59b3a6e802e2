package apns

import (
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenLifetime is how long a signed provider token is reused before being
// re-signed. Apple rejects tokens older than an hour; 50 minutes leaves
// headroom for clock drift.
const tokenLifetime = 50 * time.Minute

// providerToken caches the signed APNs authentication JWT.
type providerToken struct {
	keyID  string
	teamID string
	key    *ecdsa.PrivateKey

	mu       sync.Mutex
	signed   string
	issuedAt time.Time
}

func newProviderToken(keyID, teamID string, key *ecdsa.PrivateKey) *providerToken {
	return &providerToken{
		keyID:  keyID,
		teamID: teamID,
		key:    key,
	}
}

// Bearer returns the cached token, re-signing it once it is near expiry.
func (t *providerToken) Bearer() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.signed != "" && now.Sub(t.issuedAt) < tokenLifetime {
		return t.signed, nil
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": t.teamID,
		"iat": now.Unix(),
	})
	tok.Header["kid"] = t.keyID

	signed, err := tok.SignedString(t.key)
	if err != nil {
		return "", err
	}

	t.signed = signed
	t.issuedAt = now
	return signed, nil
}
