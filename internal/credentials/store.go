// Package credentials keeps the console's access token and auth record in a
// persistent key/value storage. Every operation is best-effort: storage
// failures are logged and reported as "not found" or false, never returned.
package credentials

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// AccessTokenKey is the primary key the access token is written under.
	AccessTokenKey = "accessToken"
	// AuthRecordKey holds the auth/profile JSON returned by login.
	AuthRecordKey = "auth"

	operatorRole = "operator"
)

// legacyTokenKeys are read, in order, when the primary key is empty.
var legacyTokenKeys = []string{"token", "authToken"}

// Storage is a string key/value store. A missing key is reported as "", nil.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Store reads and writes credentials on top of a Storage.
type Store struct {
	storage Storage
}

// NewStore creates a credential store backed by storage.
func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// AccessToken returns the stored access token, checking the primary key first
// and the legacy keys after it. Returns "" if nothing is stored or the storage
// can't be read.
func (s *Store) AccessToken() string {
	if s == nil || s.storage == nil {
		return ""
	}
	for _, key := range tokenKeys() {
		value, err := s.storage.Get(key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to read access token")
			continue
		}
		if value != "" {
			return value
		}
	}
	return ""
}

// SetAccessToken persists token under the primary key. Empty tokens are ignored.
func (s *Store) SetAccessToken(token string) bool {
	if s == nil || s.storage == nil || token == "" {
		return false
	}
	if err := s.storage.Set(AccessTokenKey, token); err != nil {
		log.Warn().Err(err).Msg("failed to store access token")
		return false
	}
	return true
}

// SetAuthRecord persists the raw auth record JSON.
func (s *Store) SetAuthRecord(record []byte) bool {
	if s == nil || s.storage == nil || len(record) == 0 {
		return false
	}
	if err := s.storage.Set(AuthRecordKey, string(record)); err != nil {
		log.Warn().Err(err).Msg("failed to store auth record")
		return false
	}
	return true
}

// Clear removes every token key and the auth record. It keeps going after a
// failed delete and returns false if any of them failed.
func (s *Store) Clear() bool {
	if s == nil || s.storage == nil {
		return false
	}
	ok := true
	for _, key := range append(tokenKeys(), AuthRecordKey) {
		if err := s.storage.Delete(key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to clear credential")
			ok = false
		}
	}
	return ok
}

// Role returns the current user's role from the auth record, or "".
func (s *Store) Role() string {
	if s == nil || s.storage == nil {
		return ""
	}
	raw, err := s.storage.Get(AuthRecordKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read auth record")
		return ""
	}
	if raw == "" {
		return ""
	}
	var record any
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return ""
	}
	role, _ := ExtractRole(record)
	return role
}

// IsOperator reports whether the current user has the Operator role.
func (s *Store) IsOperator() bool {
	return strings.EqualFold(s.Role(), operatorRole)
}

func tokenKeys() []string {
	return append([]string{AccessTokenKey}, legacyTokenKeys...)
}
