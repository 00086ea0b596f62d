package cli

import (
	"flag"
	"fmt"
	"time"
)

func newGrantCommand() *Command {
	cmd := &Command{
		Name:        "grant",
		Description: "Grant a direct permission to a user",
		Flags:       flag.NewFlagSet("grant", flag.ExitOnError),
	}

	user := cmd.Flags.String("user", "", "User ID receiving the grant")
	permission := cmd.Flags.String("permission", "", "Permission string (action:resource, wildcards allowed)")
	expires := cmd.Flags.String("expires", "", "Expiry as RFC 3339 timestamp or duration (e.g. 72h); empty means no expiry")
	actor := cmd.Flags.String("actor", "", "Acting admin user ID")
	registry := cmd.Flags.String("url", "", "Engine base URL")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *permission == "" {
			return fmt.Errorf("grant requires -user and -permission")
		}

		body := map[string]interface{}{"permission": *permission}
		if *expires != "" {
			expiresAt, err := parseExpiry(*expires)
			if err != nil {
				return err
			}
			body["expires_at"] = expiresAt
		}

		client := NewClient(*registry, *actor)
		var grant map[string]interface{}
		if err := client.do("POST", "/rbac/users/"+*user+"/grants", body, &grant); err != nil {
			return err
		}

		return printJSON(grant)
	}

	return cmd
}

func newRevokeCommand() *Command {
	cmd := &Command{
		Name:        "revoke",
		Description: "Revoke a direct permission from a user",
		Flags:       flag.NewFlagSet("revoke", flag.ExitOnError),
	}

	user := cmd.Flags.String("user", "", "User ID losing the grant")
	permission := cmd.Flags.String("permission", "", "Permission string to revoke")
	actor := cmd.Flags.String("actor", "", "Acting admin user ID")
	registry := cmd.Flags.String("url", "", "Engine base URL")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *permission == "" {
			return fmt.Errorf("revoke requires -user and -permission")
		}

		client := NewClient(*registry, *actor)
		if err := client.do("DELETE", "/rbac/users/"+*user+"/grants/"+*permission, nil, nil); err != nil {
			return err
		}

		fmt.Printf("revoked %s from %s\n", *permission, *user)
		return nil
	}

	return cmd
}

// parseExpiry accepts either an absolute RFC 3339 timestamp or a relative
// duration from now
func parseExpiry(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return time.Now().UTC().Add(d), nil
	}
	return time.Time{}, fmt.Errorf("invalid expiry %q: want RFC 3339 timestamp or duration", value)
}
