package repositories

import (
	"testing"
	"time"

	"opschat/domain"
	"opschat/errors"

	"github.com/stretchr/testify/require"
)

func Test_UserDirectory_Round_Trip(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(openTestDB(t))

	user := User{
		ID:          "alice",
		DisplayName: "Alice Operator",
		Role:        domain.RoleAdmin,
		CreatedAt:   time.Now().UTC(),
	}
	req.NoError(directory.Upsert(user))

	fetched, err := directory.Get("alice")
	req.NoError(err)
	req.Equal(user, fetched)

	role, err := directory.RoleOf("alice")
	req.NoError(err)
	req.Equal(domain.RoleAdmin, role)
}

func Test_UserDirectory_Unknown_User(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(openTestDB(t))

	_, err := directory.RoleOf("nobody")
	req.ErrorIs(err, errors.ErrUnknownUser)
}

func Test_UserDirectory_Upsert_Overwrites(t *testing.T) {
	req := require.New(t)
	directory := NewUserDirectory(openTestDB(t))

	at := time.Now().UTC()
	req.NoError(directory.Upsert(User{ID: "carol", Role: domain.RoleUser, CreatedAt: at}))
	req.NoError(directory.Upsert(User{ID: "carol", Role: domain.RoleAdmin, CreatedAt: at}))

	role, err := directory.RoleOf("carol")
	req.NoError(err)
	req.Equal(domain.RoleAdmin, role)
}
