package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/webmail-relay/internal/mailclient"
	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/queue"
	"github.com/iliyamo/webmail-relay/internal/repository"
)

// fakeDB is an in-memory users + mail_addresses store.
type fakeDB struct {
	mu        sync.Mutex
	users     map[uint64]model.User
	addrs     map[uint64]model.MailAddress
	nextID    uint64
	createErr error
	// beforeCreate runs inside CreateAddress with the lock held, before the
	// existing addresses are counted.
	beforeCreate func()
}

func newFakeDB() *fakeDB {
	return &fakeDB{users: map[uint64]model.User{}, addrs: map[uint64]model.MailAddress{}}
}

func (f *fakeDB) id() uint64 { f.nextID++; return f.nextID }

func (f *fakeDB) Create(_ context.Context, username, hash, first, last string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return 0, repository.ErrConflict
		}
	}
	id := f.id()
	f.users[id] = model.User{ID: id, Username: username, PasswordHash: hash, FirstName: first, LastName: last, IsActive: true}
	return id, nil
}

func (f *fakeDB) UserByUsername(_ context.Context, username string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeDB) UserByEmail(_ context.Context, email string) (model.User, model.MailAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.addrs {
		if a.Email == email {
			return f.users[a.UserID], a, nil
		}
	}
	return model.User{}, model.MailAddress{}, repository.ErrNotFound
}

func (f *fakeDB) TouchLogin(_ context.Context, id uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.LastLoginAt = &at
	f.users[id] = u
	return nil
}

func (f *fakeDB) ExistsEmail(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.addrs {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDB) CountByUser(_ context.Context, userID uint64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.addrs {
		if a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) ListByUser(_ context.Context, userID uint64) ([]model.MailAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.MailAddress{}
	for _, a := range f.addrs {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeDB) Primary(_ context.Context, userID uint64) (model.MailAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.addrs {
		if a.UserID == userID && a.IsPrimary {
			return a, nil
		}
	}
	return model.MailAddress{}, repository.ErrNotFound
}

func (f *fakeDB) SetPrimary(_ context.Context, userID, addressID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.addrs[addressID]
	if !ok {
		return repository.ErrNotFound
	}
	if a.UserID != userID {
		return repository.ErrForbidden
	}
	for id, other := range f.addrs {
		if other.UserID == userID {
			other.IsPrimary = id == addressID
			f.addrs[id] = other
		}
	}
	return nil
}

func (f *fakeDB) CreateAddress(_ context.Context, a model.MailAddress, firstOnly bool) (model.MailAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.MailAddress{}, f.createErr
	}
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	n := 0
	for _, other := range f.addrs {
		if other.Email == a.Email {
			return model.MailAddress{}, repository.ErrConflict
		}
		if other.UserID == a.UserID {
			n++
		}
	}
	if firstOnly && n > 0 {
		return model.MailAddress{}, repository.ErrNotFirst
	}
	a.ID = f.id()
	a.IsPrimary = n == 0
	f.addrs[a.ID] = a
	return a, nil
}

func (f *fakeDB) primaries(userID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.addrs {
		if a.UserID == userID && a.IsPrimary {
			n++
		}
	}
	return n
}

// memVaultStore is an in-memory vault.Store.
type memVaultStore struct {
	mu   sync.Mutex
	rows map[string]model.VaultEntry
}

func newMemVaultStore() *memVaultStore { return &memVaultStore{rows: map[string]model.VaultEntry{}} }

func (m *memVaultStore) Upsert(_ context.Context, e model.VaultEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[e.TokenHash] = e
	return nil
}

func (m *memVaultStore) Find(_ context.Context, h string) (model.VaultEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[h]
	if !ok {
		return model.VaultEntry{}, repository.ErrNotFound
	}
	return e, nil
}

func (m *memVaultStore) Delete(_ context.Context, h string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, h)
	return nil
}

func (m *memVaultStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, e := range m.rows {
		if e.ExpiresAt.Before(now) {
			delete(m.rows, h)
			n++
		}
	}
	return n, nil
}

type fakeEvents struct {
	mu  sync.Mutex
	got []queue.MailboxProvisionedEvent
	err error
}

func (f *fakeEvents) MailboxProvisioned(_ context.Context, ev queue.MailboxProvisionedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, ev)
	return f.err
}

type fakeSender struct {
	cred mailclient.Credentials
	msg  mailclient.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, cred mailclient.Credentials, msg mailclient.Message) (string, error) {
	f.cred, f.msg = cred, msg
	if f.err != nil {
		return "", f.err
	}
	return "<1@relay.test>", nil
}

type fakeVerifier struct {
	cred  mailclient.Credentials
	limit int
	inbox mailclient.Inbox
	err   error
}

func (f *fakeVerifier) ListInbox(_ context.Context, cred mailclient.Credentials, limit int) (mailclient.Inbox, error) {
	f.cred, f.limit = cred, limit
	return f.inbox, f.err
}

func (f *fakeVerifier) Verify(_ context.Context, cred mailclient.Credentials) error {
	f.cred = cred
	return f.err
}

// countingProvisioner wraps a real provisioner and records calls.
type countingProvisioner struct {
	Provisioner
	provisions int
	discards   int
}

func (c *countingProvisioner) Provision(ctx context.Context, base, domain, lp string) (string, error) {
	c.provisions++
	return c.Provisioner.Provision(ctx, base, domain, lp)
}

func (c *countingProvisioner) Discard(ctx context.Context, base, domain, lp string) error {
	c.discards++
	return c.Provisioner.Discard(ctx, base, domain, lp)
}

var errBoom = errors.New("boom")
