package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/domain"
	"github.com/joao-fontenele/goodfood/internal/email"
)

type resetEntry struct {
	kind    auth.Kind
	id      string
	expires time.Time
}

type memRepo struct {
	mu       sync.Mutex
	seq      int
	buyers   map[string]*domain.Buyer
	sellers  map[string]*domain.Seller
	pending  map[string]*PendingRegistration
	hashes   map[string]string
	resets   map[string]resetEntry
	verified map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		buyers:   map[string]*domain.Buyer{},
		sellers:  map[string]*domain.Seller{},
		pending:  map[string]*PendingRegistration{},
		hashes:   map[string]string{},
		resets:   map[string]resetEntry{},
		verified: map[string]bool{},
	}
}

func (m *memRepo) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memRepo) Account(_ context.Context, kind auth.Kind, addr string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == auth.KindSeller {
		for _, s := range m.sellers {
			if strings.EqualFold(s.Email, addr) {
				return &Account{ID: s.ID, Name: s.Name, Email: s.Email, PasswordHash: m.hashes[s.ID]}, nil
			}
		}
		return nil, nil
	}
	for _, b := range m.buyers {
		if strings.EqualFold(b.Email, addr) {
			return &Account{ID: b.ID, Name: b.Name, Email: b.Email, PasswordHash: m.hashes[b.ID]}, nil
		}
	}
	return nil, nil
}

func (m *memRepo) SetResetToken(_ context.Context, kind auth.Kind, id, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = resetEntry{kind: kind, id: id, expires: expires}
	return nil
}

func (m *memRepo) ConsumeResetToken(_ context.Context, kind auth.Kind, token, hash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.resets[token]
	if !ok || entry.kind != kind || !entry.expires.After(now) {
		return false, nil
	}
	delete(m.resets, token)
	m.hashes[entry.id] = hash
	return true, nil
}

func (m *memRepo) Buyer(_ context.Context, id string) (*domain.Buyer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buyers[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memRepo) UpdateBuyer(_ context.Context, b *domain.Buyer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.buyers {
		if id != b.ID && strings.EqualFold(other.Email, b.Email) {
			return domain.Errorf(domain.ErrConflict, "email is already in use")
		}
	}
	cp := *b
	m.buyers[b.ID] = &cp
	return nil
}

func (m *memRepo) PendingExists(_ context.Context, addr string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pending {
		if strings.EqualFold(p.Email, addr) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CreatePending(_ context.Context, p *PendingRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID("pending")
	cp := *p
	m.pending[p.ID] = &cp
	return nil
}

func (m *memRepo) Pending(_ context.Context, id string) (*PendingRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) DeletePending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
	return nil
}

func (m *memRepo) PromotePending(_ context.Context, p *PendingRegistration, now time.Time) (*domain.Buyer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &domain.Buyer{
		ID:             m.nextID("buyer"),
		Name:           p.Name,
		Email:          p.Email,
		ContactNumber:  p.ContactNumber,
		Address:        p.Address,
		ProfilePicture: p.ProfilePicture,
		EmailVerified:  true,
		CreatedAt:      now,
	}
	m.buyers[b.ID] = b
	m.hashes[b.ID] = p.PasswordHash
	delete(m.pending, p.ID)
	cp := *b
	return &cp, nil
}

func (m *memRepo) PurgePending(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(m.pending, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CreateSeller(_ context.Context, s *domain.Seller, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID("seller")
	cp := *s
	m.sellers[s.ID] = &cp
	m.hashes[s.ID] = hash
	return nil
}

func (m *memRepo) Seller(_ context.Context, id string) (*domain.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sellers[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) MarkSellerVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sellers[id]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "user not found")
	}
	s.EmailVerified = true
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last() email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return email.Message{}
	}
	return m.sent[len(m.sent)-1]
}

var errMailDown = errors.New("mail service down")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tokenAfter returns the text following "token=" up to the next quote or the end.
func tokenAfter(s string) string {
	_, rest, ok := strings.Cut(s, "token=")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, `"<`); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
