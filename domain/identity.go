package domain

// Role is the role claim issued by the identity provider.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Identity is the authenticated caller of a request or connection.
// It is extracted from the bearer token and never trusted from the body.
type Identity struct {
	UserID string
	Role   Role
}
