package mockbroker

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const tokenTTL = 30 * time.Second

type pending struct {
	device  string
	creds   Credentials
	expires time.Time
}

// tokenStore hands out single-use socket tokens.
type tokenStore struct {
	mu     sync.Mutex
	tokens map[string]pending
	now    func() time.Time
}

func newTokenStore() *tokenStore {
	return &tokenStore{tokens: make(map[string]pending), now: time.Now}
}

// Issue records the credentials for device and returns a fresh token.
// Expired tokens are swept on the way.
func (s *tokenStore) Issue(device string, creds Credentials) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for tok, p := range s.tokens {
		if now.After(p.expires) {
			delete(s.tokens, tok)
		}
	}
	tok := uuid.NewString()
	s.tokens[tok] = pending{device: device, creds: creds, expires: now.Add(tokenTTL)}
	return tok
}

// Take consumes a token. A token is valid once and only before it expires.
func (s *tokenStore) Take(tok string) (pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.tokens[tok]
	if !ok {
		return pending{}, false
	}
	delete(s.tokens, tok)
	if s.now().After(p.expires) {
		return pending{}, false
	}
	return p, true
}

// Len is the number of outstanding tokens.
func (s *tokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
