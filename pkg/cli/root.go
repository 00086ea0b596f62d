package cli

import (
	"flag"
	"fmt"
	"os"
	"sort"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "gatehouse",
		Description: "Gatehouse - Authorization & Entitlement Engine CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("gatehouse", flag.ExitOnError),
	}

	root.Subcommands["check"] = newCheckCommand()
	root.Subcommands["grant"] = newGrantCommand()
	root.Subcommands["revoke"] = newRevokeCommand()
	root.Subcommands["quota"] = newQuotaCommand()
	root.Subcommands["provision"] = newProvisionCommand()

	return root
}

// Execute runs the command
func (c *Command) Execute() error {
	args := os.Args[1:]
	if len(args) == 0 {
		return c.usage()
	}

	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	fmt.Printf("\nEnvironment:\n")
	fmt.Printf("  GATEHOUSE_URL    Engine base URL (default http://localhost:8080)\n")
	fmt.Printf("  GATEHOUSE_ACTOR  Acting user ID sent on admin requests\n")
	return nil
}
