package credstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"mcpgate/internal/api"
	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

const (
	// fileMode is the only permission set accepted for credential files.
	fileMode os.FileMode = 0o600
	dirMode  os.FileMode = 0o700

	lockTimeout      = 5 * time.Second
	lockPollInterval = 50 * time.Millisecond
)

// FileStore persists credentials as one JSON file per provider and record
// kind.
//
// SECURITY: this store handles OAuth credentials.
//   - Files are written with 0600 permissions, the directory with 0700
//   - Every read checks the file mode and fails closed with an
//     InsecureFilePermissions error if group or other bits are set
//   - Writes are atomic (temp file + rename) and serialized across
//     processes with a lock file
//   - Token values are never logged
type FileStore struct {
	dir string

	// mu serializes writers inside this process; flock.Flock treats a
	// second lock from the same handle as already held.
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, api.New(api.KindBadRequest, "credential store directory must not be empty")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	return &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
	}, nil
}

// Dir returns the directory credentials are stored in.
func (s *FileStore) Dir() string {
	return s.dir
}

// path maps a provider and record kind onto a file name. Provider ids are
// hashed so arbitrary target names cannot escape the directory.
func (s *FileStore) path(providerID, kind string) string {
	sum := sha256.Sum256([]byte(providerID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+"."+kind+".json")
}

func (s *FileStore) ClientInformation(ctx context.Context, providerID string) (*oauth.ClientInformation, error) {
	var info oauth.ClientInformation
	found, err := s.read(ctx, providerID, kindClient, &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

func (s *FileStore) SaveClientInformation(ctx context.Context, providerID string, info *oauth.ClientInformation) error {
	if info == nil {
		return errNilRecord(kindClient)
	}
	return s.write(ctx, providerID, kindClient, info)
}

func (s *FileStore) Tokens(ctx context.Context, providerID string) (*oauth.Token, error) {
	var tok oauth.Token
	found, err := s.read(ctx, providerID, kindTokens, &tok)
	if err != nil || !found {
		return nil, err
	}
	return &tok, nil
}

func (s *FileStore) SaveTokens(ctx context.Context, providerID string, tokens *oauth.Token) error {
	if tokens == nil {
		return errNilRecord(kindTokens)
	}
	if err := s.write(ctx, providerID, kindTokens, tokens); err != nil {
		logging.Audit("token_store_failed", slog.String("provider", providerID), slog.String("error", err.Error()))
		return err
	}
	logging.Audit("token_stored",
		slog.String("provider", providerID),
		slog.Bool("has_refresh_token", tokens.RefreshToken != ""))
	return nil
}

func (s *FileStore) DeleteTokens(ctx context.Context, providerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path(providerID, kindTokens)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	logging.Audit("token_deleted", slog.String("provider", providerID))
	return nil
}

func (s *FileStore) CodeVerifier(ctx context.Context, providerID string) (string, error) {
	var v string
	found, err := s.read(ctx, providerID, kindVerifier, &v)
	if err != nil {
		return "", err
	}
	if !found || v == "" {
		return "", ErrNoVerifier
	}
	return v, nil
}

func (s *FileStore) SaveCodeVerifier(ctx context.Context, providerID string, verifier string) error {
	return s.write(ctx, providerID, kindVerifier, verifier)
}

// read decodes the record into out. It reports found=false when the file
// does not exist.
func (s *FileStore) read(ctx context.Context, providerID, kind string, out interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path := s.path(providerID, kind)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open credential file: %w", err)
	}
	defer f.Close()

	// Stat the open descriptor so the checked mode is the mode of the file
	// actually read.
	fi, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat credential file: %w", err)
	}
	if perm := fi.Mode().Perm(); perm&0o077 != 0 {
		logging.Audit("insecure_permissions",
			slog.String("provider", providerID),
			slog.String("kind", kind),
			slog.String("mode", perm.String()))
		return false, &api.Error{
			Kind:     api.KindInsecureFilePermissions,
			Target:   providerID,
			Endpoint: path,
			Message:  fmt.Sprintf("credential file %s has insecure permissions %s, expected %s", path, perm, fileMode),
		}
	}

	if err := json.NewDecoder(f).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode credential file %s: %w", path, err)
	}
	return true, nil
}

func (s *FileStore) write(ctx context.Context, providerID, kind string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credential file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(providerID, kind)); err != nil {
		return fmt.Errorf("failed to move credential file into place: %w", err)
	}
	return nil
}

func (s *FileStore) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockPollInterval)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to acquire credential lock: %w", err)
	}
	if !locked {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to acquire credential lock: timeout after %v", lockTimeout)
	}
	return func() {
		_ = s.lock.Unlock()
		s.mu.Unlock()
	}, nil
}
