package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvFileProvider stores the key as an OPENAI_API_KEY line in a .env file.
// Other variables in the file are preserved on write.
type EnvFileProvider struct {
	path string
	mu   sync.Mutex
}

func NewEnvFileProvider(path string) *EnvFileProvider {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	return &EnvFileProvider{path: path}
}

// Path returns the .env file location.
func (p *EnvFileProvider) Path() string {
	return p.path
}

func (p *EnvFileProvider) Get(context.Context) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	env, err := p.read()
	if err != nil {
		return "", false, err
	}
	key := strings.TrimSpace(env[EnvKey])
	return key, key != "", nil
}

func (p *EnvFileProvider) Set(_ context.Context, key string) error {
	key, err := ValidateKey(key)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	env, err := p.read()
	if err != nil {
		return err
	}
	env[EnvKey] = key
	return p.write(env)
}

func (p *EnvFileProvider) Clear(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	env, err := p.read()
	if err != nil {
		return err
	}
	if _, ok := env[EnvKey]; !ok {
		return nil
	}
	delete(env, EnvKey)
	return p.write(env)
}

func (p *EnvFileProvider) read() (map[string]string, error) {
	env, err := godotenv.Read(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}
	return env, nil
}

func (p *EnvFileProvider) write(env map[string]string) error {
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create env dir: %w", err)
		}
	}
	if err := godotenv.Write(env, p.path); err != nil {
		return fmt.Errorf("write %s: %w", p.path, err)
	}
	return os.Chmod(p.path, 0o600)
}
