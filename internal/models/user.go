package models

// Role represents user roles in the system
type Role string

const (
	RoleMainAdmin Role = "main-admin"
	RoleShipAdmin Role = "ship-admin"
	RoleCrew      Role = "gemi-personeli"
)

// User represents a person viewing or editing the maintenance schedule
type User struct {
	ID       DocID  `bson:"_id,omitempty" json:"id"`
	Username string `bson:"userName" json:"username"`
	Name     string `bson:"name" json:"name"`
	Email    string `bson:"email" json:"email"`
	Role     Role   `bson:"role" json:"role"`
	ShipID   string `bson:"shipId,omitempty" json:"ship_id,omitempty"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	ShipID   string `json:"ship_id"`
	Exp      int64  `json:"exp"`
}

// User converts the claims into the viewer they describe
func (c *Claims) User() *User {
	return &User{
		ID:       DocID(c.UserID),
		Username: c.Username,
		Name:     c.Name,
		Email:    c.Email,
		Role:     c.Role,
		ShipID:   c.ShipID,
	}
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleMainAdmin, RoleShipAdmin, RoleCrew:
		return true
	default:
		return false
	}
}

// Identity is the display string written into attribution fields.
func (u *User) Identity() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// Identities lists every non-empty value equipment may name as responsible.
func (u *User) Identities() []string {
	var out []string
	for _, v := range []string{u.Email, u.Username, u.Name} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
