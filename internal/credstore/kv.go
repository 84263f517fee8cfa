package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

// KV is the minimal contract a custom credential backend has to satisfy.
// Get reports found=false (and no error) for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// KVStore adapts any KV backend into a Store. Keys are laid out as
// <prefix><providerID>:<kind>.
type KVStore struct {
	kv     KV
	prefix string
}

// NewKVStore creates a Store over kv. prefix namespaces the keys so several
// gateways can share one backend.
func NewKVStore(kv KV, prefix string) *KVStore {
	return &KVStore{kv: kv, prefix: prefix}
}

func (s *KVStore) key(providerID, kind string) string {
	return s.prefix + providerID + ":" + kind
}

func (s *KVStore) get(ctx context.Context, providerID, kind string, out interface{}) (bool, error) {
	data, found, err := s.kv.Get(ctx, s.key(providerID, kind))
	if err != nil {
		return false, fmt.Errorf("failed to read %s for %s: %w", kind, providerID, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s for %s: %w", kind, providerID, err)
	}
	return true, nil
}

func (s *KVStore) set(ctx context.Context, providerID, kind string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	if err := s.kv.Set(ctx, s.key(providerID, kind), data); err != nil {
		return fmt.Errorf("failed to write %s for %s: %w", kind, providerID, err)
	}
	return nil
}

func (s *KVStore) ClientInformation(ctx context.Context, providerID string) (*oauth.ClientInformation, error) {
	var info oauth.ClientInformation
	found, err := s.get(ctx, providerID, kindClient, &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

func (s *KVStore) SaveClientInformation(ctx context.Context, providerID string, info *oauth.ClientInformation) error {
	if info == nil {
		return errNilRecord(kindClient)
	}
	return s.set(ctx, providerID, kindClient, info)
}

func (s *KVStore) Tokens(ctx context.Context, providerID string) (*oauth.Token, error) {
	var tok oauth.Token
	found, err := s.get(ctx, providerID, kindTokens, &tok)
	if err != nil || !found {
		return nil, err
	}
	return &tok, nil
}

func (s *KVStore) SaveTokens(ctx context.Context, providerID string, tokens *oauth.Token) error {
	if tokens == nil {
		return errNilRecord(kindTokens)
	}
	if err := s.set(ctx, providerID, kindTokens, tokens); err != nil {
		return err
	}
	logging.Audit("token_stored", slog.String("provider", providerID))
	return nil
}

func (s *KVStore) DeleteTokens(ctx context.Context, providerID string) error {
	if err := s.kv.Delete(ctx, s.key(providerID, kindTokens)); err != nil {
		return fmt.Errorf("failed to delete tokens for %s: %w", providerID, err)
	}
	logging.Audit("token_deleted", slog.String("provider", providerID))
	return nil
}

func (s *KVStore) CodeVerifier(ctx context.Context, providerID string) (string, error) {
	var v string
	found, err := s.get(ctx, providerID, kindVerifier, &v)
	if err != nil {
		return "", err
	}
	if !found || v == "" {
		return "", ErrNoVerifier
	}
	return v, nil
}

func (s *KVStore) SaveCodeVerifier(ctx context.Context, providerID string, verifier string) error {
	return s.set(ctx, providerID, kindVerifier, verifier)
}
