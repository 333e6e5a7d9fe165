package model

import "testing"

func TestUserRolePredicates(t *testing.T) {
	super := &User{ID: "1", Role: RoleSuperAdmin}
	school := &User{ID: "2", Role: RoleSchoolAdmin, SchoolID: "s1"}

	if !super.IsSuperAdmin() || super.IsSchoolAdmin() {
		t.Error("super_admin predicates wrong")
	}
	if !school.IsSchoolAdmin() || school.IsSuperAdmin() {
		t.Error("school_admin predicates wrong")
	}
}

func TestValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleSuperAdmin, true},
		{RoleSchoolAdmin, true},
		{"admin", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidRole(tt.role); got != tt.want {
			t.Errorf("ValidRole(%q) = %v; want %v", tt.role, got, tt.want)
		}
	}
}

func TestDashboardPath(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{RoleSuperAdmin, "/dashboard"},
		{RoleSchoolAdmin, "/school/dashboard"},
		{"unknown", "/"},
	}

	for _, tt := range tests {
		if got := DashboardPath(tt.role); got != tt.want {
			t.Errorf("DashboardPath(%q) = %q; want %q", tt.role, got, tt.want)
		}
	}
}
