// Package credentials maps a batch owner to the bearer token used against
// the remote API. How tokens got into the file (OAuth dance, bot
// passwords) is outside the engine's scope.
package credentials

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Provider resolves a username to a bearer token
type Provider interface {
	Token(username string) (string, error)
}

type credentialsFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// FileProvider reads tokens from a YAML file of the form:
//
//	tokens:
//	  some-user: "bearer-token"
type FileProvider struct {
	path string

	mu     sync.RWMutex
	tokens map[string]string
}

// NewFileProvider loads the credentials file
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the credentials file
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing credentials: %w", err)
	}
	p.mu.Lock()
	p.tokens = file.Tokens
	p.mu.Unlock()
	return nil
}

// Token returns the bearer token for a username
func (p *FileProvider) Token(username string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	token, ok := p.tokens[username]
	if !ok || token == "" {
		return "", fmt.Errorf("no token for user %q", username)
	}
	return token, nil
}

// Static is a fixed in-memory provider, used by tests and single-user
// setups.
type Static map[string]string

// Token returns the bearer token for a username
func (s Static) Token(username string) (string, error) {
	token, ok := s[username]
	if !ok || token == "" {
		return "", fmt.Errorf("no token for user %q", username)
	}
	return token, nil
}
