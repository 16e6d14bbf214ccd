// Package credentials rotates interchangeable odds-provider API keys by
// their last observed remaining quota.
package credentials

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrNoCredentials = errors.New("credentials: at least one key is required")

// Quota is the usage metadata returned with every provider response.
// Negative Used or Last means the header was absent.
type Quota struct {
	Remaining int
	Used      int
	Last      int
}

// Credential is the key handed to one outbound call.
type Credential struct {
	Key   string
	Index int
}

// CredentialState is a masked view of one credential for diagnostics.
type CredentialState struct {
	Index      int        `json:"index"`
	Key        string     `json:"key"`
	Remaining  *int       `json:"remaining"`
	Used       *int       `json:"used,omitempty"`
	LastCost   *int       `json:"last_cost,omitempty"`
	Healthy    bool       `json:"healthy"`
	Active     bool       `json:"active"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

type credential struct {
	key        string
	known      bool
	remaining  int
	used       int
	last       int
	observedAt time.Time
}

// Pool is safe for concurrent use. It is owned by the wiring layer and
// injected into the odds client.
type Pool struct {
	mu        sync.Mutex
	creds     []credential
	cursor    int
	threshold int
	now       func() time.Time
}

// NewPool keeps keys in order, dropping blanks and duplicates.
func NewPool(keys []string, switchThreshold int) (*Pool, error) {
	seen := make(map[string]struct{}, len(keys))
	creds := make([]credential, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		creds = append(creds, credential{key: key, used: -1, last: -1})
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	if switchThreshold < 0 {
		switchThreshold = 0
	}

	return &Pool{
		creds:     creds,
		threshold: switchThreshold,
		now:       time.Now,
	}, nil
}

func (p *Pool) Len() int {
	return len(p.creds)
}

func (p *Pool) Threshold() int {
	return p.threshold
}

// Keys returns every credential in pool order, for quota warm-up.
func (p *Pool) Keys() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Credential, 0, len(p.creds))
	for i, c := range p.creds {
		out = append(out, Credential{Key: c.key, Index: i})
	}
	return out
}

// Select returns the best credential. Unknown quota ranks above any known
// value, then higher remaining wins; ties go to the rotation cursor and the
// credentials after it. When every credential is at or below the switch
// threshold the least-bad one is still returned.
func (p *Pool) Select() Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := p.cursor
	for step := 1; step < len(p.creds); step++ {
		i := (p.cursor + step) % len(p.creds)
		if p.better(i, best) {
			best = i
		}
	}
	return Credential{Key: p.creds[best].key, Index: best}
}

// Report records quota headers for key. Falling to the threshold moves the
// cursor to the next healthy credential. It returns true when the caller
// should switch credentials.
func (p *Pool) Report(key string, quota Quota) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(key)
	if i < 0 {
		return false
	}
	c := &p.creds[i]
	c.known = true
	c.remaining = quota.Remaining
	if quota.Used >= 0 {
		c.used = quota.Used
	}
	if quota.Last >= 0 {
		c.last = quota.Last
	}
	c.observedAt = p.now()

	if p.healthy(i) {
		return false
	}
	p.advanceFrom(i)
	return true
}

// MarkExhausted handles a rate-limit or quota error for key.
func (p *Pool) MarkExhausted(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(key)
	if i < 0 {
		return
	}
	p.creds[i].known = true
	p.creds[i].remaining = 0
	p.creds[i].observedAt = p.now()
	p.advanceFrom(i)
}

// Snapshot reports the masked state of every credential.
func (p *Pool) Snapshot() []CredentialState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CredentialState, 0, len(p.creds))
	for i, c := range p.creds {
		state := CredentialState{
			Index:   i,
			Key:     Mask(c.key),
			Healthy: p.healthy(i),
			Active:  i == p.cursor,
		}
		if c.known {
			remaining := c.remaining
			state.Remaining = &remaining
			observed := c.observedAt
			state.ObservedAt = &observed
		}
		if c.used >= 0 {
			used := c.used
			state.Used = &used
		}
		if c.last >= 0 {
			last := c.last
			state.LastCost = &last
		}
		out = append(out, state)
	}
	return out
}

// Mask keeps the last four characters of a key.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func (p *Pool) healthy(i int) bool {
	c := p.creds[i]
	return !c.known || c.remaining > p.threshold
}

func (p *Pool) better(i, j int) bool {
	a, b := p.creds[i], p.creds[j]
	switch {
	case !a.known && !b.known:
		return false
	case !a.known:
		return true
	case !b.known:
		return false
	default:
		return a.remaining > b.remaining
	}
}

// advanceFrom moves the cursor round-robin to the first healthy credential
// after i. The cursor stays put when none is healthy.
func (p *Pool) advanceFrom(i int) {
	for step := 1; step < len(p.creds); step++ {
		next := (i + step) % len(p.creds)
		if p.healthy(next) {
			p.cursor = next
			return
		}
	}
}

func (p *Pool) indexOf(key string) int {
	for i := range p.creds {
		if p.creds[i].key == key {
			return i
		}
	}
	return -1
}
