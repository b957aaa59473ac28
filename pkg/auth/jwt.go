package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	errs "github.com/nmxmxh/peerdesk/pkg/errors"
)

var ErrInvalidToken = errs.New("invalid token")

// ParseAndExtractAuthContext parses an HS256 JWT and returns an AuthContext.
func ParseAndExtractAuthContext(tokenStr, secret string) (*Context, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	authCtx := &Context{
		UserID: toString(claims["sub"]),
		Roles:  toStringSlice(claims["roles"]),
		JWTID:  toString(claims["jti"]),
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		authCtx.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		authCtx.ExpiresAt = exp.Time
	}
	return authCtx, nil
}

// IssueToken signs a token for userID. It backs the CLI client and tests;
// production tokens come from the portal's session service.
func IssueToken(secret, userID string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"roles": roles,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toStringSlice(v interface{}) []string {
	switch arr := v.(type) {
	case []interface{}:
		res := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				res = append(res, s)
			}
		}
		return res
	case []string:
		return arr
	case string:
		return []string{arr}
	}
	return nil
}
