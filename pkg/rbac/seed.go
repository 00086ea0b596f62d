package rbac

import (
	"context"
	"errors"
	"fmt"
)

// InitializeBuiltInRoles creates built-in role rows if they don't exist.
// Base entitlements for these roles come from the compiled catalog, so the
// seeded rows carry no permission edges; administrators extend them with
// AddRolePermission.
func InitializeBuiltInRoles(ctx context.Context, store Store) error {
	for _, role := range BuiltInRoles() {
		_, err := store.GetRoleByName(ctx, role.Name, nil)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRoleNotFound) {
			return fmt.Errorf("failed to check built-in role %s: %w", role.Name, err)
		}

		role := role
		if err := store.CreateRole(ctx, &role); err != nil {
			return fmt.Errorf("failed to create built-in role %s: %w", role.Name, err)
		}
	}

	return nil
}
