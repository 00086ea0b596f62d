package orgs

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryService_OrganizationCRUD(t *testing.T) {
	ctx := context.Background()
	service := NewMemoryService()

	org := &Organization{Name: "acme", OwnerUserID: "user-1"}
	if err := service.CreateOrganization(ctx, org); err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}
	if org.ID == "" {
		t.Error("Expected generated organization ID")
	}
	if org.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
	if org.DisplayName != "acme" {
		t.Errorf("Expected display name to default to name, got %s", org.DisplayName)
	}

	got, err := service.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetOrganization failed: %v", err)
	}
	// Returned organization is a copy; mutating it must not affect the store
	got.Name = "mutated"
	again, err := service.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetOrganization failed: %v", err)
	}
	if again.Name != "acme" {
		t.Errorf("Expected stored name untouched, got %s", again.Name)
	}

	if err := service.CreateOrganization(ctx, &Organization{Name: "acme", OwnerUserID: "user-2"}); err == nil {
		t.Error("Expected duplicate organization name to fail")
	}

	if _, err := service.GetOrganization(ctx, "ghost"); !errors.Is(err, ErrOrganizationNotFound) {
		t.Errorf("Expected ErrOrganizationNotFound, got %v", err)
	}
}

func TestMemoryService_AddMemberConflict(t *testing.T) {
	ctx := context.Background()
	service := NewMemoryService()

	membership := &Membership{OrganizationID: "org-1", UserID: "user-2"}
	if err := service.AddMember(ctx, membership); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if membership.Role == "" || membership.Status != MembershipActive {
		t.Errorf("Expected defaults applied, got role=%q status=%q", membership.Role, membership.Status)
	}

	err := service.AddMember(ctx, &Membership{OrganizationID: "org-1", UserID: "user-2"})
	if !errors.Is(err, ErrMemberExists) {
		t.Errorf("Expected ErrMemberExists, got %v", err)
	}

	// A removed membership still occupies the row
	if err := service.RemoveMember(ctx, "org-1", "user-2"); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	err = service.AddMember(ctx, &Membership{OrganizationID: "org-1", UserID: "user-2"})
	if !errors.Is(err, ErrMemberExists) {
		t.Errorf("Expected ErrMemberExists after removal, got %v", err)
	}
}

func TestMemoryService_MembershipLifecycle(t *testing.T) {
	ctx := context.Background()
	service := NewMemoryService()

	err := service.AddMember(ctx, &Membership{
		OrganizationID:      "org-1",
		UserID:              "user-2",
		PermissionsOverride: []string{"write:agents"},
	})
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	active, err := service.ListUserMemberships(ctx, "user-2", true)
	if err != nil {
		t.Fatalf("ListUserMemberships failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected 1 active membership, got %d", len(active))
	}

	// Suspension parks the override without losing it
	if err := service.UpdateMemberStatus(ctx, "org-1", "user-2", MembershipSuspended); err != nil {
		t.Fatalf("UpdateMemberStatus failed: %v", err)
	}
	active, err = service.ListUserMemberships(ctx, "user-2", true)
	if err != nil {
		t.Fatalf("ListUserMemberships failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active memberships while suspended, got %d", len(active))
	}
	all, err := service.ListUserMemberships(ctx, "user-2", false)
	if err != nil {
		t.Fatalf("ListUserMemberships failed: %v", err)
	}
	if len(all) != 1 || len(all[0].PermissionsOverride) != 1 {
		t.Errorf("Expected suspended membership to retain its override, got %+v", all)
	}

	// Reinstatement goes through UpdateMemberStatus
	if err := service.UpdateMemberStatus(ctx, "org-1", "user-2", MembershipActive); err != nil {
		t.Fatalf("UpdateMemberStatus failed: %v", err)
	}
	active, err = service.ListUserMemberships(ctx, "user-2", true)
	if err != nil {
		t.Fatalf("ListUserMemberships failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Expected membership active again, got %d", len(active))
	}

	// Removal is soft: the row stays, flagged removed
	if err := service.RemoveMember(ctx, "org-1", "user-2"); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	member, err := service.GetMember(ctx, "org-1", "user-2")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if member.Status != MembershipRemoved {
		t.Errorf("Expected status removed, got %s", member.Status)
	}
	members, err := service.ListMembers(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("Expected removed member still listed, got %d", len(members))
	}

	if err := service.UpdateMemberStatus(ctx, "org-1", "ghost", MembershipActive); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("Expected ErrMembershipNotFound, got %v", err)
	}
}

func TestMemoryService_SetPermissionsOverride(t *testing.T) {
	ctx := context.Background()
	service := NewMemoryService()

	if err := service.AddMember(ctx, &Membership{OrganizationID: "org-1", UserID: "user-2"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	if err := service.SetPermissionsOverride(ctx, "org-1", "user-2", []string{"write:agents", "read:labs"}); err != nil {
		t.Fatalf("SetPermissionsOverride failed: %v", err)
	}

	member, err := service.GetMember(ctx, "org-1", "user-2")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if len(member.PermissionsOverride) != 2 {
		t.Fatalf("Expected 2 override permissions, got %d", len(member.PermissionsOverride))
	}

	// Returned membership is a copy; mutating it must not affect the store
	member.PermissionsOverride[0] = "mutated"
	again, err := service.GetMember(ctx, "org-1", "user-2")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if again.PermissionsOverride[0] != "write:agents" {
		t.Errorf("Expected stored override untouched, got %s", again.PermissionsOverride[0])
	}

	if err := service.SetPermissionsOverride(ctx, "org-1", "ghost", []string{"read:agents"}); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("Expected ErrMembershipNotFound, got %v", err)
	}
}

func TestMemoryService_ListUserOrganizations(t *testing.T) {
	ctx := context.Background()
	service := NewMemoryService()

	first := &Organization{Name: "acme", OwnerUserID: "user-1"}
	second := &Organization{Name: "globex", OwnerUserID: "user-9"}
	for _, org := range []*Organization{first, second} {
		if err := service.CreateOrganization(ctx, org); err != nil {
			t.Fatalf("CreateOrganization failed: %v", err)
		}
	}

	if err := service.AddMember(ctx, &Membership{OrganizationID: first.ID, UserID: "user-2"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := service.AddMember(ctx, &Membership{OrganizationID: second.ID, UserID: "user-2"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := service.UpdateMemberStatus(ctx, second.ID, "user-2", MembershipSuspended); err != nil {
		t.Fatalf("UpdateMemberStatus failed: %v", err)
	}

	orgs, err := service.ListUserOrganizations(ctx, "user-2")
	if err != nil {
		t.Fatalf("ListUserOrganizations failed: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != first.ID {
		t.Errorf("Expected only the active-membership organization, got %+v", orgs)
	}
}
