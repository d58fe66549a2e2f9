package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testAccount() *Account {
	return &Account{
		Host:     "ftp.example.com",
		Login:    "trainer",
		Password: "hunter2secret",
	}
}

func TestManagerStoreAndRetrieve(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := testAccount()
	if err := manager.Store(account); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if mockStore.Count() != 1 {
		t.Errorf("Expected 1 account, got %d", mockStore.Count())
	}
	if account.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	retrieved, err := manager.Retrieve("ftp.example.com")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if retrieved.Login != "trainer" || retrieved.Password != "hunter2secret" {
		t.Errorf("Retrieved wrong credentials: %+v", retrieved)
	}
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	tests := []struct {
		name    string
		account *Account
	}{
		{"missing host", &Account{Login: "a", Password: "b"}},
		{"missing login", &Account{Host: "h", Password: "b"}},
		{"missing password", &Account{Host: "h", Login: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := manager.Store(tt.account); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestManagerRetrieveNotFound(t *testing.T) {
	manager, _ := NewMockManager()

	if _, err := manager.Retrieve("unknown.example.com"); err == nil {
		t.Error("Expected error for unknown host")
	}
}

func TestManagerFallsBackToSecondStore(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = ErrStoreUnavailable
	broken.RetrieveError = ErrStoreUnavailable
	working := NewMockStore()

	manager := NewMockManagerWithStores(broken, working)

	if err := manager.Store(testAccount()); err != nil {
		t.Fatalf("Store should fall through to the second store: %v", err)
	}
	if working.Count() != 1 {
		t.Errorf("Second store should hold the account, has %d", working.Count())
	}

	account, err := manager.Retrieve("ftp.example.com")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if account.Login != "trainer" {
		t.Errorf("Wrong login: %s", account.Login)
	}
}

func TestManagerListKeepsMostRecent(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()

	stale := testAccount()
	stale.Password = "old-password"
	stale.LastModified = time.Now().Add(-time.Hour)
	older.Store(stale)

	fresh := testAccount()
	fresh.LastModified = time.Now()
	newer.Store(fresh)

	manager := NewMockManagerWithStores(older, newer)

	accounts, err := manager.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("Expected 1 account, got %d", len(accounts))
	}
	if accounts[0].Password != "hunter2secret" {
		t.Error("List should prefer the most recently modified account")
	}
}

func TestManagerDelete(t *testing.T) {
	manager, mockStore := NewMockManager()
	manager.Store(testAccount())

	if err := manager.Delete("ftp.example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mockStore.Count() != 0 {
		t.Error("Account should be gone after delete")
	}

	if err := manager.Delete("ftp.example.com"); err == nil {
		t.Error("Deleting a missing account should fail")
	}
}

func TestMockStoreErrorInjection(t *testing.T) {
	store := NewMockStore()
	injected := errors.New("injected failure")

	store.StoreError = injected
	if err := store.Store(testAccount()); !errors.Is(err, injected) {
		t.Errorf("Expected injected error, got %v", err)
	}

	store.StoreError = nil
	store.Store(testAccount())

	store.RetrieveError = injected
	if _, err := store.Retrieve("ftp.example.com"); !errors.Is(err, injected) {
		t.Errorf("Expected injected error, got %v", err)
	}
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("SIZIF_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("NewEncryptedFileStore failed: %v", err)
	}

	account := testAccount()
	account.LastModified = time.Now()
	if err := store.Store(account); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	retrieved, err := store.Retrieve("ftp.example.com")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if retrieved.Password != "hunter2secret" {
		t.Errorf("Wrong password after round trip: %s", retrieved.Password)
	}

	// the file on disk must never contain the plaintext secret
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Reading store file failed: %v", err)
	}
	if strings.Contains(string(raw), "hunter2secret") {
		t.Error("Password stored in plaintext")
	}
	if strings.Contains(string(raw), "trainer") {
		t.Error("Login stored in plaintext")
	}
}

func TestEncryptedFileStoreReopen(t *testing.T) {
	t.Setenv("SIZIF_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	first, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("NewEncryptedFileStore failed: %v", err)
	}
	if err := first.Store(testAccount()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	second, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Reopening store failed: %v", err)
	}
	if !second.Exists("ftp.example.com") {
		t.Error("Account should survive reopening the store")
	}
}

func TestEncryptedFileStoreDeleteRemovesEmptyFile(t *testing.T) {
	t.Setenv("SIZIF_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("NewEncryptedFileStore failed: %v", err)
	}
	store.Store(testAccount())

	if err := store.Delete("ftp.example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("File should be removed when the last account is deleted")
	}
}

func TestEnvironmentStoreRetrieve(t *testing.T) {
	t.Setenv("SIZIF_FTP_LOGIN", "envuser")
	t.Setenv("SIZIF_FTP_PASSWORD", "envpass")
	t.Setenv("SIZIF_FTP_HOST", "ftp.example.com")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("ftp.example.com")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if account.Login != "envuser" || account.Password != "envpass" {
		t.Errorf("Wrong credentials: %+v", account)
	}

	if _, err := store.Retrieve("other.example.com"); err == nil {
		t.Error("Host mismatch should not resolve")
	}
}

func TestEnvironmentStoreReadOnly(t *testing.T) {
	store := NewEnvironmentStore()

	if err := store.Store(testAccount()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Store should be unsupported, got %v", err)
	}
	if err := store.Delete("ftp.example.com"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Delete should be unsupported, got %v", err)
	}
}

func TestSanitizeAccount(t *testing.T) {
	account := testAccount()
	sanitized := SanitizeAccount(account)

	if sanitized.Password == account.Password {
		t.Error("Password should be masked")
	}
	if sanitized.Password != "hu...t2" {
		t.Errorf("Unexpected mask: %s", sanitized.Password)
	}
	if account.Password != "hunter2secret" {
		t.Error("Original account must not be mutated")
	}

	short := &Account{Host: "h", Login: "l", Password: "abc"}
	if SanitizeAccount(short).Password != "********" {
		t.Error("Short passwords should be fully masked")
	}

	if SanitizeAccount(nil) != nil {
		t.Error("Nil account should sanitize to nil")
	}
}
