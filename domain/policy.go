package domain

// CanSend decides whether a sender may address a recipient.
//
// The topology is hub-and-spoke: admins can reach anyone, everyone else can
// only reach admins. A rejected direction yields a forbidden error upstream,
// never a silent drop.
func CanSend(sender, recipient Role) bool {
	if sender == RoleAdmin {
		return true
	}
	return recipient == RoleAdmin
}
