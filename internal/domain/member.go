package domain

// Member is the presence meta of one connection in a room.
// No transport or lifecycle logic here.
type Member struct {
	DisplayName string
	Role        Role
	Identity    Identity
}

func NewMember(displayName string, role Role, id Identity) *Member {
	return &Member{DisplayName: displayName, Role: role, Identity: id}
}
