// Package authstate is the boundary to the external Auth State Provider:
// per-session credential storage, its presence check, and its removal on
// logout. The filesystem provider delegates the credential format itself to
// the protocol client, which owns the database inside each session dir.
package authstate

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gbarros/wamux/internal/session"
)

// Provider persists and retrieves per-session credential state.
type Provider interface {
	// HasCredentials reports whether persisted credentials exist for id.
	HasCredentials(id string) bool
	// PersistCreds records that the session's credentials changed.
	PersistCreds(id string) error
	// DeleteCredentials removes all persisted state for id.
	DeleteCredentials(id string) error
}

// FSProvider stores each session's credentials under
// <base>/sessions/<id>/.
type FSProvider struct {
	baseDir string
}

// NewFSProvider creates a provider rooted at baseDir.
func NewFSProvider(baseDir string) *FSProvider {
	return &FSProvider{baseDir: baseDir}
}

// Dir returns the storage directory for a session.
func (p *FSProvider) Dir(id string) string {
	return session.Dir(p.baseDir, id)
}

// EnsureDir creates the storage directory for a session.
func (p *FSProvider) EnsureDir(id string) error {
	return session.EnsureDir(p.baseDir, id)
}

// HasCredentials reports whether a credential directory exists for id.
func (p *FSProvider) HasCredentials(id string) bool {
	info, err := os.Stat(p.Dir(id))
	return err == nil && info.IsDir()
}

// PersistCreds touches the session's credential marker. The protocol client
// writes the credential database itself; the marker records when it last
// changed.
func (p *FSProvider) PersistCreds(id string) error {
	if err := p.EnsureDir(id); err != nil {
		return fmt.Errorf("ensure session dir: %w", err)
	}
	marker := filepath.Join(p.Dir(id), "creds.updated")
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(marker, []byte(stamp), 0600); err != nil {
		return fmt.Errorf("write creds marker: %w", err)
	}
	return nil
}

// DeleteCredentials removes the session's entire storage directory.
func (p *FSProvider) DeleteCredentials(id string) error {
	if err := os.RemoveAll(p.Dir(id)); err != nil {
		return fmt.Errorf("delete session storage: %w", err)
	}
	return nil
}
