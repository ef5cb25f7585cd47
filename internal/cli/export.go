package cli

import (
	"errors"
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"retro-paint/internal/render"
)

func (c *CLI) exportCommand() *cobra.Command {
	var (
		password string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export [ROOM_ID]",
		Short: "Save the current room canvas as a PNG file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			roomID := resolveRoom(args, store)

			m, err := c.openSession(cmd.Context(), roomID, password)
			if err != nil {
				return err
			}
			snap := m.Canvas()
			m.Disconnect()
			if snap == nil {
				return errors.New("no canvas received")
			}

			img, err := render.DecodeDataURL(snap.ImageData)
			if err != nil {
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := png.Encode(f, img); err != nil {
				f.Close()
				return fmt.Errorf("encode png: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %dx%d canvas of %s to %s\n", snap.Width, snap.Height, roomID, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password for a private room")
	cmd.Flags().StringVarP(&output, "output", "o", "canvas.png", "output file")
	return cmd
}
