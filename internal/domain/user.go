package domain

// Role classifies a directory entry.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleUnknown Role = "unknown"
)

// ParseRole maps a stored role string to a Role. Anything unrecognised is RoleUnknown.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleUser:
		return RoleUser
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

// User is a directory entry for anyone who has contacted the bot.
type User struct {
	ID          int64
	DisplayName string
	Role        Role
}

// IsAdmin reports whether the user may claim escalations.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
