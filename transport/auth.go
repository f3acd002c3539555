package transport

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BaSui01/swarmflow/types"
)

// tokenIssuer is stamped into every minted token and required on
// verification.
const tokenIssuer = "swarmflow-gateway"

// MintToken signs an HS256 worker token whose subject is the worker id.
// The gateway admits a worker only when the token subject matches the id
// the worker announces in its hello frame. A non-positive ttl issues a
// token without an expiry.
func MintToken(secret, workerID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", types.NewError(types.ErrInvalidConfig, "token secret must not be empty")
	}
	if workerID == "" {
		return "", types.NewError(types.ErrInvalidConfig, "token needs a worker id subject")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  workerID,
		Issuer:   tokenIssuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken validates an HS256 worker token against the shared secret and
// returns its subject. Failures carry the UNAUTHORIZED code.
func VerifyToken(secret, tokenStr string) (string, error) {
	if secret == "" {
		return "", types.NewError(types.ErrInvalidConfig, "token secret must not be empty")
	}
	keyFunc := func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return []byte(secret), nil
	}
	token, err := jwt.Parse(tokenStr, keyFunc,
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return "", types.NewError(types.ErrUnauthorized, "invalid or expired worker token").WithCause(err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", types.NewError(types.ErrUnauthorized, "worker token carries no subject")
	}
	return subject, nil
}
