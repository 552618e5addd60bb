package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_CanSend(t *testing.T) {
	cases := []struct {
		name      string
		sender    Role
		recipient Role
		want      bool
	}{
		{name: "admin to user", sender: RoleAdmin, recipient: RoleUser, want: true},
		{name: "admin to admin", sender: RoleAdmin, recipient: RoleAdmin, want: true},
		{name: "user to admin", sender: RoleUser, recipient: RoleAdmin, want: true},
		{name: "user to user", sender: RoleUser, recipient: RoleUser, want: false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, CanSend(c.sender, c.recipient))
		})
	}
}
