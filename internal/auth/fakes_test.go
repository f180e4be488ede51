package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"notes-auth/internal/mail"
)

const testSecret = "test-secret-0123456789abcdef-0123456789"

type refreshRow struct {
	accountID string
	expiresAt time.Time
	revoked   bool
}

// memStore is an in-memory Store with the same atomicity as the Postgres one.
type memStore struct {
	mu         sync.Mutex
	accounts   map[string]Account
	refresh    map[string]*refreshRow
	rememberMe map[string]RememberMeToken
	codes      []PasswordResetCode
	failFind   error
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		accounts:   map[string]Account{},
		refresh:    map[string]*refreshRow{},
		rememberMe: map[string]RememberMeToken{},
	}
}

func (s *memStore) addAccount(a Account) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.accounts[a.ID] = a
	return a
}

func (s *memStore) account(id string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) findBy(match func(Account) bool) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind != nil {
		return Account{}, s.failFind
	}
	for _, a := range s.accounts {
		if match(a) {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (s *memStore) FindByUsername(_ context.Context, username string) (Account, error) {
	return s.findBy(func(a Account) bool { return a.Username == username })
}

func (s *memStore) FindByEmail(_ context.Context, email string) (Account, error) {
	return s.findBy(func(a Account) bool { return a.Email == email })
}

func (s *memStore) FindByID(_ context.Context, id string) (Account, error) {
	return s.findBy(func(a Account) bool { return a.ID == id })
}

func (s *memStore) CreateAccount(_ context.Context, input NewAccount) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == input.Username {
			return Account{}, ErrUsernameConflict
		}
		if a.Email == input.Email {
			return Account{}, ErrEmailConflict
		}
	}
	now := time.Now().UTC()
	a := Account{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *memStore) UpdatePassword(_ context.Context, accountID, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = now
	s.accounts[accountID] = a
	return nil
}

func (s *memStore) UpdatePasswordIfUnchanged(_ context.Context, accountID, oldHash, newHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok || a.PasswordHash != oldHash {
		return false, nil
	}
	a.PasswordHash = newHash
	a.UpdatedAt = now
	s.accounts[accountID] = a
	return true, nil
}

func (s *memStore) CreateSession(_ context.Context, accountID, rawToken string, expiresAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[hashToken(rawToken)] = &refreshRow{accountID: accountID, expiresAt: expiresAt}
	a := s.accounts[accountID]
	stamp := now
	a.LastLoginAt = &stamp
	s.accounts[accountID] = a
	return nil
}

func (s *memStore) RotateRefreshToken(_ context.Context, rawOldToken, rawNewToken string, newExpiresAt, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldHash := hashToken(rawOldToken)
	row, ok := s.refresh[oldHash]
	if !ok || row.revoked || !now.Before(row.expiresAt) {
		return "", ErrRefreshTokenNotActive
	}
	row.revoked = true
	newHash := hashToken(rawNewToken)
	s.refresh[newHash] = &refreshRow{accountID: row.accountID, expiresAt: newExpiresAt}
	for id, rm := range s.rememberMe {
		if rm.TokenHash == oldHash {
			rm.TokenHash = newHash
			rm.UpdatedAt = now
			s.rememberMe[id] = rm
		}
	}
	return row.accountID, nil
}

func (s *memStore) RevokeRefreshToken(_ context.Context, rawToken string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.refresh[hashToken(rawToken)]; ok {
		row.revoked = true
	}
	return nil
}

func (s *memStore) UpsertRememberMe(_ context.Context, accountID, rawToken string, expiresAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rememberMe[accountID] = RememberMeToken{AccountID: accountID, TokenHash: hashToken(rawToken), ExpiresAt: expiresAt, UpdatedAt: now}
	return nil
}

func (s *memStore) DeleteRememberMe(_ context.Context, rawToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := hashToken(rawToken)
	for id, rm := range s.rememberMe {
		if rm.TokenHash == hash {
			delete(s.rememberMe, id)
		}
	}
	return nil
}

func (s *memStore) ReplaceResetCode(_ context.Context, code PasswordResetCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.codes[:0]
	for _, c := range s.codes {
		if c.AccountID != code.AccountID || c.Used {
			kept = append(kept, c)
		}
	}
	code.ID = uuid.Must(uuid.NewV7()).String()
	s.codes = append(kept, code)
	return nil
}

func (s *memStore) HasRedeemableResetCode(_ context.Context, accountID, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.AccountID == accountID && c.Code == code && c.Redeemable(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ConsumeResetCode(_ context.Context, accountID, code, passwordHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.codes {
		if c.AccountID == accountID && c.Code == code && c.Redeemable(now) {
			used := now
			s.codes[i].Used = true
			s.codes[i].UsedAt = &used
			a := s.accounts[accountID]
			a.PasswordHash = passwordHash
			s.accounts[accountID] = a
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) resetCodesFor(accountID string) []PasswordResetCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PasswordResetCode
	for _, c := range s.codes {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
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

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

var errMailDown = errors.New("smtp: connection refused")

func testHasher() *Argon2idHasher {
	return NewArgon2idHasher(Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1})
}

func testRenderer() *mail.Renderer {
	r, err := mail.NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// seedAccount stores an active account with the given password.
func seedAccount(store *memStore, username, email, password string) Account {
	hash, err := testHasher().Hash(password)
	if err != nil {
		panic(err)
	}
	return store.addAccount(Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	})
}
