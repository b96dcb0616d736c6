// Copyright 2024-2026 Aiku AI

package booster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// credentialsFile is the on-disk form of a Session.
type credentialsFile struct {
	Server       string `yaml:"server"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
}

// SessionRegistrar obtains a new session. *Registrar implements it.
type SessionRegistrar interface {
	Register(ctx context.Context) (*Session, error)
}

// FileCredentials persists the session in a YAML file.
type FileCredentials struct {
	path      string
	registrar SessionRegistrar
}

var _ CredentialProvider = (*FileCredentials)(nil)

// NewFileCredentials creates a provider for the file at path. registrar
// may be nil when registration is not possible.
func NewFileCredentials(path string, registrar SessionRegistrar) *FileCredentials {
	return &FileCredentials{path: path, registrar: registrar}
}

// Path returns the credentials file location.
func (f *FileCredentials) Path() string { return f.path }

// Load reads the session. A missing or empty file is ErrNotRegistered.
func (f *FileCredentials) Load(_ context.Context) (*Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotRegistered
	} else if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var cf credentialsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", f.path, err)
	}
	if cf == (credentialsFile{}) {
		return nil, ErrNotRegistered
	}

	session := NewSession(cf.Server, cf.ClientID, cf.ClientSecret, cf.AccessToken)
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("credentials %s: %w", f.path, err)
	}
	return session, nil
}

// Register runs the registrar and saves the new session.
func (f *FileCredentials) Register(ctx context.Context) (*Session, error) {
	if f.registrar == nil {
		return nil, errors.New("no registrar configured")
	}
	session, err := f.registrar.Register(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Save writes the session atomically with owner-only permissions.
func (f *FileCredentials) Save(s *Session) error {
	data, err := yaml.Marshal(credentialsFile{
		Server:       s.Server(),
		ClientID:     s.ClientID(),
		ClientSecret: s.ClientSecret(),
		AccessToken:  s.AccessToken(),
	})
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename credentials: %w", err)
	}
	return nil
}
