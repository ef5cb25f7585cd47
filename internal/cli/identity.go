package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the local identity, creating one on first use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			user, err := store.GetOrCreateUser()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", user.Username, user.ID)
			if ref, err := store.LoadRoom(); err == nil && ref != nil {
				fmt.Fprintf(out, "  last room: %s\n", ref.ID)
			}
			fmt.Fprintf(out, "  stored in: %s\n", store.Path())
			return nil
		},
	}
}

func (c *CLI) resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the local identity, last room and cached canvas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Local identity cleared")
			return nil
		},
	}
}
