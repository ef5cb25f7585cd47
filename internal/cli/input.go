package cli

import (
	"fmt"
	"strconv"
	"strings"

	"retro-paint/internal/domain"
)

type inputKind int

const (
	inputChat inputKind = iota
	inputDraw
	inputUndo
	inputRedo
	inputWho
	inputHelp
	inputQuit
)

// input is one parsed line typed during `painter join`.
type input struct {
	kind inputKind
	text string
	op   domain.DrawingOperation
}

const inputHelpText = `Type a message to chat, or a command:
  /line X1 Y1 X2 Y2 [COLOR]   straight line
  /rect X1 Y1 X2 Y2 [COLOR]   rectangle outline
  /circle X Y R [COLOR]       circle outline
  /fill X Y COLOR             bucket fill
  /text X Y WORDS...          text
  /undo, /redo                step through the shared history
  /who                        list users in the room
  /quit                       leave`

// parseInput turns a line into a chat message or a command. A leading "//"
// sends the rest as chat.
func parseInput(line string) (input, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "//") {
		return input{kind: inputChat, text: line[1:]}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return input{kind: inputChat, text: line}, nil
	}

	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/undo":
		return input{kind: inputUndo}, nil
	case "/redo":
		return input{kind: inputRedo}, nil
	case "/who":
		return input{kind: inputWho}, nil
	case "/help", "/?":
		return input{kind: inputHelp}, nil
	case "/quit", "/exit":
		return input{kind: inputQuit}, nil
	case "/line", "/rect":
		nums, rest, err := numbers(name, args, 4)
		if err != nil {
			return input{}, err
		}
		kind := domain.KindLine
		if name == "/rect" {
			kind = domain.KindRectangle
		}
		return drawInput(kind, domain.OperationPayload{
			X: &nums[0], Y: &nums[1], EndX: &nums[2], EndY: &nums[3], Color: optional(rest),
		}), nil
	case "/circle":
		nums, rest, err := numbers(name, args, 3)
		if err != nil {
			return input{}, err
		}
		endX, endY := nums[0]+nums[2], nums[1]
		return drawInput(domain.KindCircle, domain.OperationPayload{
			X: &nums[0], Y: &nums[1], EndX: &endX, EndY: &endY, Color: optional(rest),
		}), nil
	case "/fill":
		nums, rest, err := numbers(name, args, 2)
		if err != nil {
			return input{}, err
		}
		if len(rest) == 0 {
			return input{}, fmt.Errorf("/fill needs a color")
		}
		return drawInput(domain.KindBucket, domain.OperationPayload{X: &nums[0], Y: &nums[1], FillColor: rest[0]}), nil
	case "/text":
		nums, rest, err := numbers(name, args, 2)
		if err != nil {
			return input{}, err
		}
		if len(rest) == 0 {
			return input{}, fmt.Errorf("/text needs some words")
		}
		return drawInput(domain.KindText, domain.OperationPayload{X: &nums[0], Y: &nums[1], Text: strings.Join(rest, " ")}), nil
	}
	return input{}, fmt.Errorf("unknown command %s (try /help)", name)
}

func drawInput(kind domain.OperationKind, p domain.OperationPayload) input {
	return input{kind: inputDraw, op: domain.DrawingOperation{Kind: kind, Payload: p}}
}

func numbers(cmd string, args []string, n int) ([]float64, []string, error) {
	if len(args) < n {
		return nil, nil, fmt.Errorf("%s needs %d numbers", cmd, n)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %q is not a number", cmd, args[i])
		}
		out[i] = v
	}
	return out, args[n:], nil
}

func optional(rest []string) string {
	if len(rest) == 0 {
		return ""
	}
	return rest[0]
}
