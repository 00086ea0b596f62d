package auth

import (
	"context"
	"fmt"
	"sync"
)

// StaticVerifier maps opaque credentials to pre-registered identities. It is
// intended for tests and embedded deployments; production edges plug in their
// own Verifier (see examples/oidc-gateway for an OIDC-backed one).
type StaticVerifier struct {
	mu          sync.RWMutex
	credentials map[string]*TrustedIdentity
}

// NewStaticVerifier creates a new StaticVerifier
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{
		credentials: make(map[string]*TrustedIdentity),
	}
}

// Register associates a credential with an identity
func (v *StaticVerifier) Register(credential string, identity *TrustedIdentity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credentials[credential] = identity
}

// Verify returns the identity registered for the credential
func (v *StaticVerifier) Verify(ctx context.Context, credential string) (*TrustedIdentity, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	identity, ok := v.credentials[credential]
	if !ok {
		return nil, fmt.Errorf("unknown credential")
	}

	copied := *identity
	return &copied, nil
}
