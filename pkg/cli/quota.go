package cli

import (
	"flag"
	"fmt"
)

func newQuotaCommand() *Command {
	cmd := &Command{
		Name:        "quota",
		Description: "Show quota usage for a user",
		Flags:       flag.NewFlagSet("quota", flag.ExitOnError),
	}

	user := cmd.Flags.String("user", "", "User ID to inspect")
	actor := cmd.Flags.String("actor", "", "Acting admin user ID")
	registry := cmd.Flags.String("url", "", "Engine base URL")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("quota requires -user")
		}

		client := NewClient(*registry, *actor)
		var quotas []map[string]interface{}
		if err := client.do("GET", "/v1/principals/"+*user+"/quotas", nil, &quotas); err != nil {
			return err
		}

		return printJSON(quotas)
	}

	return cmd
}

func newProvisionCommand() *Command {
	cmd := &Command{
		Name:        "provision",
		Description: "Provision quota rows for a user's subscription tier",
		Flags:       flag.NewFlagSet("provision", flag.ExitOnError),
	}

	user := cmd.Flags.String("user", "", "User ID to provision")
	tier := cmd.Flags.String("tier", "", "Tier to provision limits for (defaults to the user's current tier)")
	actor := cmd.Flags.String("actor", "", "Acting admin user ID")
	registry := cmd.Flags.String("url", "", "Engine base URL")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("provision requires -user")
		}

		body := map[string]interface{}{}
		if *tier != "" {
			body["tier"] = *tier
		}

		client := NewClient(*registry, *actor)
		var quotas []map[string]interface{}
		if err := client.do("POST", "/v1/principals/"+*user+"/quotas/provision", body, &quotas); err != nil {
			return err
		}

		return printJSON(quotas)
	}

	return cmd
}
