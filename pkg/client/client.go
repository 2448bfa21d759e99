// Package client provides service account client setup for Google APIs.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

// New creates an HTTP client authorized with the service account key at path.
func New(ctx context.Context, keyFilePath string, scope ...string) (*http.Client, error) {
	b, err := os.ReadFile(keyFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading service account file: %w", err)
	}

	return NewFromJSON(ctx, b, scope...)
}

// NewFromJSON creates an HTTP client authorized with a service account key.
// The returned client refreshes its access token as needed.
func NewFromJSON(ctx context.Context, keyJSON []byte, scope ...string) (*http.Client, error) {
	config, err := parseKey(keyJSON, scope...)
	if err != nil {
		return nil, err
	}
	return config.Client(ctx), nil
}

// NewServiceAccount creates an HTTP client from an inline key, falling back to keyFilePath.
func NewServiceAccount(ctx context.Context, keyJSON, keyFilePath string, scope ...string) (*http.Client, error) {
	if keyJSON != "" {
		return NewFromJSON(ctx, []byte(keyJSON), scope...)
	}
	if keyFilePath == "" {
		return nil, errors.New("no service account key configured")
	}
	return New(ctx, keyFilePath, scope...)
}

// ServiceAccountEmail returns the client_email of a service account key.
// The spreadsheet must be shared with this address.
func ServiceAccountEmail(keyJSON []byte) (string, error) {
	config, err := parseKey(keyJSON)
	if err != nil {
		return "", err
	}
	return config.Email, nil
}

func parseKey(keyJSON []byte, scope ...string) (*jwt.Config, error) {
	config, err := google.JWTConfigFromJSON(keyJSON, scope...)
	if err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}
	return config, nil
}
