package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"retro-paint/internal/dto"
)

func (c *CLI) roomsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List and create rooms",
	}
	cmd.AddCommand(c.roomsListCommand())
	cmd.AddCommand(c.roomsCreateCommand())
	return cmd
}

func (c *CLI) roomsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms with their live user counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := c.api().List(cmd.Context())
			if err != nil {
				return err
			}
			if len(rooms) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rooms")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tUSERS\tPRIVATE")
			for _, r := range rooms {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%v\n", r.ID, r.Name, r.CurrentUsers, r.MaxUsers, r.IsPrivate)
			}
			return w.Flush()
		},
	}
}

func (c *CLI) roomsCreateCommand() *cobra.Command {
	var req dto.CreateRoomRequest

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			if req.Password != "" {
				req.IsPrivate = true
			}
			room, err := c.api().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created room %q\n  id: %s\n", room.Name, room.ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&req.MaxUsers, "max-users", 10, "maximum simultaneous users (2-50)")
	cmd.Flags().BoolVar(&req.IsPrivate, "private", false, "require a password to join")
	cmd.Flags().StringVar(&req.Password, "password", "", "room password (implies --private)")
	return cmd
}
