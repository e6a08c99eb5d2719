package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"go-saas-auth/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) FindActiveByEmail(ctx context.Context, email string) (model.Identity, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.Identity), args.Error(1)
}

func (m *mockUserStore) FindActiveByID(ctx context.Context, id string) (model.Identity, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Identity), args.Error(1)
}

func (m *mockUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) Create(ctx context.Context, u model.Identity) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserStore) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	args := m.Called(ctx, userID, passwordHash)
	return args.Error(0)
}

func (m *mockUserStore) OrganizationExists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) FindOrganizationBySlug(ctx context.Context, slug string) (model.Organization, error) {
	args := m.Called(ctx, slug)
	return args.Get(0).(model.Organization), args.Error(1)
}

// plainHasher stands in for bcrypt so the tests stay fast. It counts calls
// to tell which branch of the login flow ran.
type plainHasher struct {
	mu          sync.Mutex
	verifyCalls int
	dummyCalls  int
}

func (h *plainHasher) Hash(raw string) (string, error) {
	return "hashed:" + raw, nil
}

func (h *plainHasher) Verify(raw string, hash string) bool {
	h.mu.Lock()
	h.verifyCalls++
	h.mu.Unlock()
	return hash == "hashed:"+raw
}

func (h *plainHasher) VerifyDummy(string) {
	h.mu.Lock()
	h.dummyCalls++
	h.mu.Unlock()
}

func (h *plainHasher) calls() (verify int, dummy int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifyCalls, h.dummyCalls
}

type memoryTokenRepo struct {
	mu       sync.Mutex
	byDigest map[string]model.RefreshToken
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{byDigest: map[string]model.RefreshToken{}}
}

func (r *memoryTokenRepo) ReplaceForUser(_ context.Context, token model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for digest, existing := range r.byDigest {
		if existing.UserID == token.UserID {
			delete(r.byDigest, digest)
		}
	}
	r.byDigest[token.Digest] = token
	return nil
}

func (r *memoryTokenRepo) FindByDigest(_ context.Context, digest string) (model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byDigest[digest]
	if !ok {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	return token, nil
}

func (r *memoryTokenRepo) DeleteByDigest(_ context.Context, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byDigest, digest)
	return nil
}

func (r *memoryTokenRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for digest, existing := range r.byDigest {
		if existing.UserID == userID {
			delete(r.byDigest, digest)
		}
	}
	return nil
}

type memoryAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	err     error
}

func (r *memoryAuditRepo) Log(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryAuditRepo) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]model.AuditEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if query.Action != "" && !strings.EqualFold(e.Action, query.Action) {
			continue
		}
		items = append(items, e)
	}
	return items, model.Meta{Page: 1, Limit: 50, Total: len(items), TotalPages: 1}, nil
}

func (r *memoryAuditRepo) statuses(action string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0)
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e.Status)
		}
	}
	return out
}

type memoryResetRepo struct {
	mu       sync.Mutex
	byDigest map[string]model.PasswordResetToken
}

func newMemoryResetRepo() *memoryResetRepo {
	return &memoryResetRepo{byDigest: map[string]model.PasswordResetToken{}}
}

func (r *memoryResetRepo) ReplaceForUser(_ context.Context, token model.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for digest, existing := range r.byDigest {
		if existing.UserID == token.UserID {
			delete(r.byDigest, digest)
		}
	}
	r.byDigest[token.Digest] = token
	return nil
}

func (r *memoryResetRepo) Consume(_ context.Context, digest string) (model.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byDigest[digest]
	if !ok {
		return model.PasswordResetToken{}, model.ErrTokenNotFound
	}
	delete(r.byDigest, digest)
	return token, nil
}

func (r *memoryResetRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byDigest)
}

// capturingNotifier keeps the last token it was asked to deliver per user.
type capturingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	sent   int
	err    error
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, identity model.Identity, token string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.tokens == nil {
		n.tokens = map[string]string{}
	}
	n.tokens[identity.ID] = token
	n.sent++
	return nil
}

func (n *capturingNotifier) tokenFor(userID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[userID]
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}
