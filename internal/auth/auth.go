// Package auth implements the bearer-token access control of spec.md
// §4.10: an external-collaborator interface exercised by unit tests but not
// wired to any HTTP server here (the façade itself is out of scope per
// spec.md §1). A request (method, path) is permitted iff the token's
// method set matches and at least one of its path prefixes matches, per
// the glob-or-prefix rule the spec defines.
package auth

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is the decoded claim set spec.md §4.10 describes: a method
// allowlist ("*" means any) and a set of path prefixes, each either a
// literal prefix or a glob pattern containing '*' or '?'.
type Token struct {
	Methods  []string `json:"methods"`
	Prefixes []string `json:"prefixes"`
	jwt.RegisteredClaims
}

// Allowed reports whether (method, path) is permitted by t, per spec.md
// §4.10: ("*" in methods or M.upper() in methods) and some prefix matches
// (fnmatch if it contains * or ?, else a plain prefix).
func (t Token) Allowed(method, path string) bool {
	if !methodAllowed(t.Methods, method) {
		return false
	}
	for _, p := range t.Prefixes {
		if matchPrefix(path, p) {
			return true
		}
	}
	return false
}

func methodAllowed(methods []string, method string) bool {
	method = strings.ToUpper(method)
	for _, m := range methods {
		if m == "*" || strings.ToUpper(m) == method {
			return true
		}
	}
	return false
}

func matchPrefix(path, pattern string) bool {
	if strings.ContainsAny(pattern, "*?") {
		ok, err := filepath.Match(pattern, path)
		return err == nil && ok
	}
	return strings.HasPrefix(path, pattern)
}

// TokenChecker validates and decodes bearer tokens signed with a shared
// secret, exposing the same Allowed(method, path) check spec.md §4.10
// mandates at the (out-of-scope) HTTP boundary.
type TokenChecker struct {
	secret []byte
}

// NewTokenChecker builds a checker validating HS256 tokens signed with secret.
func NewTokenChecker(secret []byte) *TokenChecker {
	return &TokenChecker{secret: secret}
}

// Parse validates bearerToken's signature and standard exp claim, returning
// the decoded Token on success.
func (c *TokenChecker) Parse(bearerToken string) (Token, error) {
	var claims Token
	tok, err := jwt.ParseWithClaims(bearerToken, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Token{}, fmt.Errorf("parse token: %w", err)
	}
	if !tok.Valid {
		return Token{}, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Allowed decodes bearerToken and checks (method, path) against it in one
// call, returning false (never an HTTP body leak) on any validation error.
func (c *TokenChecker) Allowed(bearerToken, method, path string) bool {
	tok, err := c.Parse(bearerToken)
	if err != nil {
		return false
	}
	return tok.Allowed(method, path)
}

// Issue mints a new token for testing/administration, signed with the
// checker's secret, expiring after ttl.
func (c *TokenChecker) Issue(methods, prefixes []string, ttl time.Duration) (string, error) {
	claims := Token{
		Methods:  methods,
		Prefixes: prefixes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secret)
}
