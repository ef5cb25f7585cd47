// Package cli implements the painter command-line client.
package cli

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"retro-paint/internal/client"
)

const (
	appName       = "painter"
	defaultServer = "http://localhost:8080"
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *logrus.Logger

	in         io.Reader
	server     string
	configDir  string
	httpClient *http.Client
}

// New creates a CLI reading interactive input from in and logging to logOut.
func New(in io.Reader, logOut io.Writer) *CLI {
	logger := logrus.New()
	logger.SetOutput(logOut)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.00"})
	logger.SetLevel(logrus.WarnLevel)
	return &CLI{
		Logger:     logger,
		in:         in,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// RootCommand builds the command tree.
func (c *CLI) RootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          appName,
		Short:        "Draw together on a shared canvas from the terminal",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				c.Logger.SetLevel(logrus.DebugLevel)
			}
		},
	}

	server := os.Getenv("PAINTER_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&c.server, "server", server, "server base URL")
	root.PersistentFlags().StringVar(&c.configDir, "config-dir", "", "identity directory (default ~/.config/retro-paint)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.roomsCommand())
	root.AddCommand(c.joinCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.whoamiCommand())
	root.AddCommand(c.resetCommand())
	return root
}

func (c *CLI) api() *RoomsAPI {
	return NewRoomsAPI(c.server, c.httpClient)
}

func (c *CLI) store() (*client.IdentityStore, error) {
	return client.NewIdentityStore(c.configDir)
}

// resolveRoom picks the room from args, then the last joined room, then the default room.
func resolveRoom(args []string, store *client.IdentityStore) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if ref, err := store.LoadRoom(); err == nil && ref != nil && ref.ID != "" {
		return ref.ID
	}
	return store.DefaultRoomID()
}
