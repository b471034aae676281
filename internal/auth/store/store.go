// Package store persists the gateway credential as a JSON file under the auth
// directory. Validation happens at this boundary so callers can trust loaded
// credentials.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shariqriazz/copilotgate/internal/auth"
	log "github.com/sirupsen/logrus"
)

// ErrNoCredential is returned by Load when no credential file exists yet.
var ErrNoCredential = errors.New("copilotgate store: no stored credential")

// Store persists credentials. Implementations must validate on load.
type Store interface {
	Load(ctx context.Context) (*auth.Credential, error)
	Save(ctx context.Context, cred *auth.Credential) error
}

// FileStore keeps one credential file per provider under a directory.
type FileStore struct {
	dir      string
	provider string
}

// NewFileStore constructs a store rooted at dir for the given provider name.
func NewFileStore(dir, provider string) *FileStore {
	return &FileStore{dir: dir, provider: provider}
}

// Path returns the credential file location.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, CredentialFileName(s.provider, ""))
}

// Load reads and validates the stored credential. A missing file yields
// ErrNoCredential wrapped in a PersistenceError-free sentinel so setup flows
// can distinguish "never logged in" from real I/O failures.
func (s *FileStore) Load(_ context.Context) (*auth.Credential, error) {
	path := s.Path()
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if errors.Is(errRead, fs.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, &auth.PersistenceError{Path: path, Err: errRead}
	}

	var cred auth.Credential
	if errDecode := json.Unmarshal(data, &cred); errDecode != nil {
		return nil, &auth.PersistenceError{Path: path, Err: fmt.Errorf("decode credential: %w", errDecode)}
	}
	if errValidate := cred.Validate(); errValidate != nil {
		return nil, &auth.PersistenceError{Path: path, Err: errValidate}
	}
	return &cred, nil
}

// Save writes the credential atomically with owner-only permissions.
func (s *FileStore) Save(_ context.Context, cred *auth.Credential) error {
	if errValidate := cred.Validate(); errValidate != nil {
		return errValidate
	}
	path := s.Path()
	if errMkdir := os.MkdirAll(s.dir, 0o700); errMkdir != nil {
		return &auth.PersistenceError{Path: path, Err: errMkdir}
	}

	data, errMarshal := json.MarshalIndent(cred, "", "  ")
	if errMarshal != nil {
		return &auth.PersistenceError{Path: path, Err: errMarshal}
	}

	tmp := path + ".tmp"
	if errWrite := os.WriteFile(tmp, data, 0o600); errWrite != nil {
		return &auth.PersistenceError{Path: path, Err: errWrite}
	}
	if errRename := os.Rename(tmp, path); errRename != nil {
		if errRemove := os.Remove(tmp); errRemove != nil {
			log.Warnf("credential store: remove temp file: %v", errRemove)
		}
		return &auth.PersistenceError{Path: path, Err: errRename}
	}
	return nil
}
