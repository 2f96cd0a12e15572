// Package auth defines the identity contract the HTTP layer consumes.
// Verification of request signatures lives outside this service; the
// server only needs something that turns a raw request into a trusted
// public key.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// PubkeyHeader is the header the gateway sets after verifying the
// request signature upstream.
const PubkeyHeader = "X-Pubkey"

// ErrUnauthenticated is returned when a request carries no verifiable
// identity.
var ErrUnauthenticated = errors.New("request carries no verified identity")

// Verifier yields the trusted public key for a request, or rejects it.
type Verifier interface {
	Verify(r *http.Request) (pubkey string, err error)
}

// HeaderVerifier trusts the pubkey header stamped by the upstream
// signature-checking gateway. It is the deployment default; swap in a
// different Verifier to terminate signature checks in-process.
type HeaderVerifier struct{}

// Verify extracts the pubkey from the request headers.
func (HeaderVerifier) Verify(r *http.Request) (string, error) {
	pubkey := strings.TrimSpace(r.Header.Get(PubkeyHeader))
	if pubkey == "" {
		return "", ErrUnauthenticated
	}
	return pubkey, nil
}
