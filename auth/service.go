package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Service derives the signed-in identity from a bearer token issued by Azure AD.
// It falls back to DefaultIdentity when the token is not a JWT or carries no identity claim.
type Service struct {
	// DefaultIdentity is returned when extraction fails.
	DefaultIdentity string
	// Parse turns a token string into jwt.MapClaims (unverified parse by default).
	Parse func(token string) (jwt.MapClaims, error)
	// Extract returns the identity from claims; bool indicates success.
	Extract func(jwt.MapClaims) (string, bool)
}

// identityClaims lists the claims checked in order; Azure AD v1 tokens use upn/unique_name, v2 preferred_username.
var identityClaims = []string{"upn", "preferred_username", "unique_name", "email", "sub"}

// Identity returns the user principal the token was issued to.
func (s *Service) Identity(token string) string {
	if s == nil {
		return "default"
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return s.DefaultIdentity
	}
	if s.Parse != nil && s.Extract != nil {
		if claims, err := s.Parse(token); err == nil {
			if id, ok := s.Extract(claims); ok && id != "" {
				return id
			}
		}
	}
	return s.DefaultIdentity
}

// New returns a default Service that reads identity claims without verification.
func New() *Service {
	return &Service{
		DefaultIdentity: "default",
		Parse: func(tokenString string) (jwt.MapClaims, error) {
			var claimMap jwt.MapClaims
			_, _, err := new(jwt.Parser).ParseUnverified(tokenString, &claimMap)
			return claimMap, err
		},
		Extract: func(mc jwt.MapClaims) (string, bool) {
			for _, name := range identityClaims {
				if v, _ := mc[name].(string); v != "" {
					return v, true
				}
			}
			return "", false
		},
	}
}
