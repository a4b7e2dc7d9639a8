// ABOUTME: Bearer credential sources for the chat data-access layer
// ABOUTME: Static/env/file token sources plus JWT expiry validation

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateDevToken mints a short-lived HS256 token with a throwaway secret
// for local development, where the in-process store stand-in performs no
// signature verification.
func GenerateDevToken(subject string, expiresIn time.Duration) (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generating dev secret: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Token errors
var (
	ErrNoToken      = errors.New("no access token available")
	ErrExpiredToken = errors.New("token expired")
)

// TokenSource provides a bearer credential, or its absence.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a source returning the given token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// AccessToken returns the configured token, or ErrNoToken if empty.
func (s *StaticTokenSource) AccessToken(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// EnvTokenSource reads the token from an environment variable on each call.
type EnvTokenSource struct {
	varName string
}

// NewEnvTokenSource creates a source reading from the named variable.
func NewEnvTokenSource(varName string) *EnvTokenSource {
	return &EnvTokenSource{varName: varName}
}

// AccessToken returns the variable's value, or ErrNoToken if unset.
func (s *EnvTokenSource) AccessToken(ctx context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(s.varName))
	if token == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNoToken, s.varName)
	}
	return token, nil
}

// FileTokenSource reads the token from a file on each call, so a refreshed
// credential is picked up without restarting.
type FileTokenSource struct {
	path string
}

// NewFileTokenSource creates a source reading from the given path.
func NewFileTokenSource(path string) *FileTokenSource {
	return &FileTokenSource{path: path}
}

// AccessToken returns the file's contents, or ErrNoToken if the file is
// missing or empty.
func (s *FileTokenSource) AccessToken(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoToken, s.path)
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoToken, s.path)
	}
	return token, nil
}

// ValidatingTokenSource wraps another source and rejects expired JWT
// credentials. Tokens that do not parse as JWTs pass through unchanged;
// the credential is otherwise opaque to the client.
type ValidatingTokenSource struct {
	src TokenSource
	now func() time.Time
}

// NewValidatingTokenSource wraps src with expiry validation.
func NewValidatingTokenSource(src TokenSource) *ValidatingTokenSource {
	return &ValidatingTokenSource{src: src, now: time.Now}
}

// AccessToken returns the wrapped token, or ErrExpiredToken if it is a JWT
// whose exp claim has passed.
func (s *ValidatingTokenSource) AccessToken(ctx context.Context) (string, error) {
	token, err := s.src.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	// Signature verification happens server-side; the client only checks
	// that it isn't presenting a credential already known to be expired.
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return token, nil
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return token, nil
	}
	if s.now().After(exp.Time) {
		return "", ErrExpiredToken
	}
	return token, nil
}
