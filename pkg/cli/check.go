package cli

import (
	"flag"
	"fmt"
)

func newCheckCommand() *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Evaluate a permission for a user",
		Flags:       flag.NewFlagSet("check", flag.ExitOnError),
	}

	user := cmd.Flags.String("user", "", "User ID to evaluate")
	permission := cmd.Flags.String("permission", "", "Permission string (action:resource)")
	tenant := cmd.Flags.String("tenant", "", "Requested tenant (defaults to the user's own)")
	registry := cmd.Flags.String("url", "", "Engine base URL")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *permission == "" {
			return fmt.Errorf("check requires -user and -permission")
		}

		client := NewClient(*registry, "")
		var decision map[string]interface{}
		err := client.do("POST", "/v1/authorize", map[string]string{
			"user_id":          *user,
			"permission":       *permission,
			"requested_tenant": *tenant,
		}, &decision)
		if err != nil {
			return err
		}

		return printJSON(decision)
	}

	return cmd
}
