package auth

// Role is the closed set of account roles. Every user holds exactly one
// role at a time; role changes are admin-privileged operations.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// ParseRole maps a stored role string onto the closed enumeration. Unknown
// strings return false so callers fail closed instead of treating a typo as
// a privilege.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleDoctor, RolePatient:
		return Role(s), true
	}
	return "", false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

func (r Role) String() string { return string(r) }
