package credstore

import (
	"context"
	"sync"

	"mcpgate/pkg/oauth"
)

// MemoryStore keeps credentials in process memory. State is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	clients   map[string]oauth.ClientInformation
	tokens    map[string]oauth.Token
	verifiers map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:   make(map[string]oauth.ClientInformation),
		tokens:    make(map[string]oauth.Token),
		verifiers: make(map[string]string),
	}
}

func (s *MemoryStore) ClientInformation(ctx context.Context, providerID string) (*oauth.ClientInformation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.clients[providerID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (s *MemoryStore) SaveClientInformation(ctx context.Context, providerID string, info *oauth.ClientInformation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if info == nil {
		return errNilRecord(kindClient)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[providerID] = *info
	return nil
}

func (s *MemoryStore) Tokens(ctx context.Context, providerID string) (*oauth.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[providerID]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (s *MemoryStore) SaveTokens(ctx context.Context, providerID string, tokens *oauth.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tokens == nil {
		return errNilRecord(kindTokens)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[providerID] = *tokens
	return nil
}

func (s *MemoryStore) DeleteTokens(ctx context.Context, providerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, providerID)
	return nil
}

func (s *MemoryStore) CodeVerifier(ctx context.Context, providerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifiers[providerID]
	if !ok || v == "" {
		return "", ErrNoVerifier
	}
	return v, nil
}

func (s *MemoryStore) SaveCodeVerifier(ctx context.Context, providerID string, verifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifiers[providerID] = verifier
	return nil
}
