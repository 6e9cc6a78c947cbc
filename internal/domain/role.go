package domain

// Role is the authorization role of a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	switch Role(role) {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// UserType distinguishes placeholder guest accounts from registered ones.
type UserType string

const (
	UserTypeGuest      UserType = "GUEST"
	UserTypeRegistered UserType = "REGISTERED"
)

// SignupMethod records how the account was first created.
type SignupMethod string

const (
	SignupEmail  SignupMethod = "EMAIL"
	SignupGoogle SignupMethod = "GOOGLE"
)
