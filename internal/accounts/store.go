package accounts

import (
	"log/slog"
	"sync"
	"time"
)

// Account is a named credential set.
type Account struct {
	Name        string
	Credentials Credentials
	SavedAt     time.Time
}

// Store is an insertion-ordered registry of accounts.
type Store struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	accounts map[string]Account
	order    []string
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:   logger,
		now:      time.Now,
		accounts: make(map[string]Account),
	}
}

// Save upserts an account. Overwriting keeps the original position.
func (s *Store) Save(name string, creds Credentials) {
	s.put(Account{Name: name, Credentials: creds, SavedAt: s.now()})
	s.logger.Info("account saved", "account", name, "login", creds.Login, "server", creds.Server)
}

func (s *Store) put(acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.Name]; !exists {
		s.order = append(s.order, acct.Name)
	}
	s.accounts[acct.Name] = acct
}

// Get returns the credentials stored under name.
func (s *Store) Get(name string) (Credentials, bool) {
	acct, ok := s.Lookup(name)
	return acct.Credentials, ok
}

// Lookup returns the full account record stored under name.
func (s *Store) Lookup(name string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[name]
	return acct, ok
}

// List returns account names in insertion order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Accounts returns all accounts in insertion order.
func (s *Store) Accounts() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.accounts[name])
	}
	return out
}

// Remove deletes an account. It returns false if the name was not stored.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[name]; !ok {
		s.logger.Warn("account not found", "account", name)
		return false
	}
	delete(s.accounts, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.logger.Info("account removed", "account", name)
	return true
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
