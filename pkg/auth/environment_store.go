package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment
// variables. Read-only, the last resort in the fallback chain.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(host string) (*Account, error) {
	login := os.Getenv("SIZIF_FTP_LOGIN")
	password := os.Getenv("SIZIF_FTP_PASSWORD")
	envHost := os.Getenv("SIZIF_FTP_HOST")

	if login == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}
	if host != "" && envHost != "" && host != envHost {
		return nil, ErrCredentialsNotFound
	}
	if host == "" {
		host = envHost
	}

	return &Account{
		Host:         host,
		Login:        login,
		Password:     password,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(host string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(host string) bool {
	return os.Getenv("SIZIF_FTP_LOGIN") != "" && os.Getenv("SIZIF_FTP_PASSWORD") != ""
}
