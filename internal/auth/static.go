package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// User is an account of the static provider.
type User struct {
	UID          string `yaml:"uid"`
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// LoadUsers reads a YAML users file.
func LoadUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	for i, u := range f.Users {
		if u.UID == "" || u.Email == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("user %d: uid, email and password_hash are required", i)
		}
	}
	return f.Users, nil
}

// HashPassword returns a bcrypt hash suitable for a users file.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

type tokenEntry struct {
	id      Identity
	expires time.Time
}

// StaticProvider checks passwords against a fixed user list and keeps tokens
// in memory. Meant for development and single-instance deployments.
type StaticProvider struct {
	users []User
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	tokens map[string]tokenEntry
}

// NewStaticProvider creates a provider. Tokens expire after ttl.
func NewStaticProvider(users []User, ttl time.Duration) *StaticProvider {
	return &StaticProvider{
		users:  users,
		ttl:    ttl,
		now:    time.Now,
		tokens: make(map[string]tokenEntry),
	}
}

func (p *StaticProvider) SignIn(ctx context.Context, c Credentials) (string, Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", Identity{}, err
	}
	email := strings.TrimSpace(c.Email)
	for _, u := range p.users {
		if !strings.EqualFold(u.Email, email) {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(c.Password)); err != nil {
			return "", Identity{}, errInvalidCredentials()
		}
		id := Identity{UID: u.UID, Email: u.Email, DisplayName: u.Name}
		token := rand.Text()
		p.mu.Lock()
		p.tokens[token] = tokenEntry{id: id, expires: p.now().Add(p.ttl)}
		p.mu.Unlock()
		return token, id, nil
	}
	return "", Identity{}, errInvalidCredentials()
}

func (p *StaticProvider) Identify(ctx context.Context, token string) (Identity, bool, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.tokens[token]
	if !ok {
		return Identity{}, false, nil
	}
	if !p.now().Before(e.expires) {
		delete(p.tokens, token)
		return Identity{}, false, nil
	}
	return e.id, true, nil
}

// SignOut forgets token. Unknown tokens are ignored.
func (p *StaticProvider) SignOut(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.tokens, token)
	p.mu.Unlock()
	return nil
}
