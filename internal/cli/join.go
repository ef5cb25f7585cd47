package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"retro-paint/internal/client"
)

// openSession connects to roomID. A password is exchanged for a room ticket
// first so reconnects never resend it.
func (c *CLI) openSession(ctx context.Context, roomID, password string) (*client.Manager, error) {
	store, err := c.store()
	if err != nil {
		return nil, err
	}
	user, err := store.GetOrCreateUser()
	if err != nil {
		return nil, err
	}

	api := c.api()
	wsURL, err := api.WebSocketURL()
	if err != nil {
		return nil, err
	}
	cfg := client.Config{
		ServerURL: wsURL,
		RoomID:    roomID,
		User:      user,
		Store:     store,
		Logger:    logrus.NewEntry(c.Logger),
	}
	if password != "" {
		t, err := api.Ticket(ctx, roomID, password)
		if err != nil {
			return nil, fmt.Errorf("get room ticket: %w", err)
		}
		cfg.Ticket = t.Ticket
	}

	m, err := client.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.Connect(ctx); err != nil {
		m.Disconnect()
		return nil, err
	}
	return m, nil
}

func (c *CLI) joinCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "join [ROOM_ID]",
		Short: "Join a room and chat or draw from the prompt",
		Long:  "Join a room (default: the last joined room, else the shared default room).\n\n" + inputHelpText,
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
			defer m.Disconnect()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Joined %s. Type /help for commands.\n", roomID)
			return c.interact(cmd.Context(), m, out)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password for a private room")
	return cmd
}

// interact pumps session events to out and typed lines to the session until
// the input ends, /quit, the session fails, or ctx is cancelled.
func (c *CLI) interact(ctx context.Context, m *client.Manager, out io.Writer) error {
	events, cancel := m.Subscribe(256)
	defer cancel()

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			printEvent(out, e)
			if e.Kind == client.EventState && e.State == client.Failed {
				return e.Err
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			in, err := parseInput(line)
			if err != nil {
				fmt.Fprintln(out, "!", err)
				continue
			}
			if in.kind == inputQuit {
				return nil
			}
			if err := dispatch(m, in, out); err != nil {
				fmt.Fprintln(out, "!", err)
			}
		}
	}
}

func dispatch(m *client.Manager, in input, out io.Writer) error {
	switch in.kind {
	case inputChat:
		return m.SendChat(in.text)
	case inputDraw:
		return m.SendDrawing(in.op)
	case inputUndo:
		return m.SendUndo()
	case inputRedo:
		return m.SendRedo()
	case inputWho:
		for _, u := range m.Users() {
			fmt.Fprintf(out, "  %s (%s)\n", u.Username, u.ID)
		}
	case inputHelp:
		fmt.Fprintln(out, inputHelpText)
	}
	return nil
}

func printEvent(out io.Writer, e client.Event) {
	switch e.Kind {
	case client.EventState:
		switch e.State {
		case client.Reconnecting:
			fmt.Fprintf(out, "* connection lost, retry %d in %s\n", e.Attempt, e.Delay)
		case client.Connected:
			fmt.Fprintln(out, "* connected")
		case client.Failed:
			fmt.Fprintf(out, "* giving up: %v\n", e.Err)
		}
	case client.EventChat:
		fmt.Fprintf(out, "[%s] %s\n", e.Message.Username, e.Message.Message)
	case client.EventDrawing:
		fmt.Fprintf(out, "~ %s drew %s\n", e.Message.UserID, e.Message.DrawingType)
	case client.EventUserList:
		names := make([]string, 0, len(e.Message.Users))
		for _, u := range e.Message.Users {
			names = append(names, u.Username)
		}
		fmt.Fprintf(out, "* in room: %s\n", strings.Join(names, ", "))
	case client.EventCanvas:
		if e.Canvas != nil {
			fmt.Fprintf(out, "* canvas at step %d/%d\n", e.Canvas.HistoryIndex+1, len(e.Canvas.History))
		}
	case client.EventError:
		fmt.Fprintf(out, "! %s: %s\n", e.Message.Code, e.Message.Message)
	}
}
