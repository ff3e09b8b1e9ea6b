package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"main admin role", RoleMainAdmin, true},
		{"ship admin role", RoleShipAdmin, true},
		{"crew role", RoleCrew, true},
		{"invalid role", "invalid", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestUser_Identity(t *testing.T) {
	tests := []struct {
		name     string
		user     *User
		expected string
	}{
		{"name preferred", &User{Name: "Ayşe", Username: "ayse", Email: "a@x.io"}, "Ayşe"},
		{"username fallback", &User{Username: "ayse", Email: "a@x.io"}, "ayse"},
		{"email fallback", &User{Email: "a@x.io"}, "a@x.io"},
		{"empty", &User{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Identity(); got != tt.expected {
				t.Errorf("Identity() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUser_Identities(t *testing.T) {
	u := &User{Email: "crew@ship.io", Name: "Mehmet"}
	got := u.Identities()
	if len(got) != 2 || got[0] != "crew@ship.io" || got[1] != "Mehmet" {
		t.Errorf("Identities() = %v", got)
	}
}

func TestClaims_User(t *testing.T) {
	c := &Claims{UserID: "u1", Username: "cap", Role: RoleShipAdmin, ShipID: "s1"}
	u := c.User()
	if u.ID != "u1" || u.Username != "cap" || u.Role != RoleShipAdmin || u.ShipID != "s1" {
		t.Errorf("unexpected user %+v", u)
	}
}
