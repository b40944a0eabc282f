package auth

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Basic authenticates HTTP Basic credentials against an htpasswd file of
// bcrypt hashes. Usernames are email addresses.
type Basic struct {
	users map[string][]byte
}

// LoadHtpasswd reads an htpasswd file.
func LoadHtpasswd(path string) (*Basic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open htpasswd: %w", err)
	}
	defer f.Close()
	return ParseHtpasswd(f)
}

// ParseHtpasswd parses "user:hash" lines. Blank lines and lines starting
// with "#" are ignored. Only bcrypt hashes are accepted.
func ParseHtpasswd(r io.Reader) (*Basic, error) {
	users := make(map[string][]byte)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		user, hash, ok := strings.Cut(text, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("htpasswd line %d: expected user:hash", line)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("htpasswd line %d: %s: only bcrypt hashes are supported", line, user)
		}
		users[user] = []byte(hash)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read htpasswd: %w", err)
	}
	return &Basic{users: users}, nil
}

// Authenticate checks the request's Basic credentials.
func (b *Basic) Authenticate(r *http.Request) (string, error) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return "", ErrUnauthenticated
	}
	hash, known := b.users[user]
	if !known {
		// Unknown users pay for a comparison too.
		bcrypt.CompareHashAndPassword(dummyHash(), []byte(pass))
		return "", ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(pass)); err != nil {
		return "", ErrUnauthenticated
	}
	return user, nil
}

// Challenge implements Authenticator.
func (b *Basic) Challenge() string {
	return `Basic realm="fragments"`
}

var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost)
	return h
})
