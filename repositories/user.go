//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_directory.go -package=mocks
package repositories

import (
	"fmt"
	"time"

	"opschat/domain"
	"opschat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// IUserDirectory resolves opaque user ids to their role claim. The identity
// provider owns these records; this directory is a local projection of them,
// consulted by the authorization gate on every send.
type IUserDirectory interface {
	Upsert(u User) error
	Get(userID string) (User, error)
	RoleOf(userID string) (domain.Role, error)
}

type UserDirectory struct {
	db *badger.DB
}

func NewUserDirectory(db *badger.DB) UserDirectory {
	return UserDirectory{db: db}
}

// User is the directory-level representation of a portal account.
// Equivalent to the message record for the account domain.
type User struct {
	ID          string
	DisplayName string
	Role        domain.Role
	CreatedAt   time.Time
}

type userRecord struct {
	ID          string `cbor:"1,keyasint"`
	DisplayName string `cbor:"2,keyasint,omitempty"`
	Role        string `cbor:"3,keyasint"`
	CreatedAt   int64  `cbor:"4,keyasint"`
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func (u UserDirectory) Upsert(user User) error {
	data, err := cbor.Marshal(userRecord{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
		CreatedAt:   user.CreatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
}

func (u UserDirectory) Get(userID string) (User, error) {
	var rec userRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return cbor.Unmarshal(value, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return User{}, fmt.Errorf("%w: %s", errors.ErrUnknownUser, userID)
	}
	if err != nil {
		return User{}, err
	}
	return User{
		ID:          rec.ID,
		DisplayName: rec.DisplayName,
		Role:        domain.Role(rec.Role),
		CreatedAt:   time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}

func (u UserDirectory) RoleOf(userID string) (domain.Role, error) {
	user, err := u.Get(userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}
