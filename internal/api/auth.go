package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey int

const (
	claimsKey contextKey = iota
	requestIDKey
)

// Claims holds the token claims the API relies on. Subject is the
// preferences namespace the caller may read and write.
type Claims struct {
	Subject string
}

// ClaimsFromContext extracts claims stored by JWTAuth.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

// JWTAuth validates HS256 bearer tokens and stores their claims in the
// request context. When issuer is non-empty the iss claim must match.
func JWTAuth(secret, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid authorization header format")
				return
			}

			sub, err := parseToken(parts[1], secret, issuer)
			if err != nil {
				httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, Claims{Subject: sub})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseToken(tokenStr, secret, issuer string) (string, error) {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, parserOpts...)
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", errors.New("token missing subject claim")
	}
	return sub, nil
}

// IssueToken signs an HS256 token granting access to the namespace subject.
// A zero ttl produces a token without expiry.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("empty subject")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if issuer != "" {
		claims.Issuer = issuer
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
