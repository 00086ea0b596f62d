package orgs

import "testing"

func TestMembershipStatusValid(t *testing.T) {
	valid := []MembershipStatus{MembershipActive, MembershipSuspended, MembershipRemoved}
	for _, status := range valid {
		if !status.Valid() {
			t.Errorf("Expected %s to be valid", status)
		}
	}

	invalid := []MembershipStatus{"", "banished", "ACTIVE", "pending"}
	for _, status := range invalid {
		if status.Valid() {
			t.Errorf("Expected %s to be invalid", status)
		}
	}
}

func TestMembershipIsActive(t *testing.T) {
	tests := []struct {
		status MembershipStatus
		want   bool
	}{
		{MembershipActive, true},
		{MembershipSuspended, false},
		{MembershipRemoved, false},
		{MembershipStatus(""), false},
	}

	for _, tt := range tests {
		m := &Membership{Status: tt.status}
		if got := m.IsActive(); got != tt.want {
			t.Errorf("IsActive with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}
