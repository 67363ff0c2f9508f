package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/gocare/internal/presentation/tui"
	"github.com/aretw0/gocare/pkg/domain"
	"github.com/aretw0/gocare/pkg/session"
)

// ChatOptions configures an interactive call.
type ChatOptions struct {
	SessionID string
	Handshake domain.Handshake
	// Interactive prints prompts and colours. Off when stdin is piped.
	Interactive bool
	// ShowChanges prints the context diff after every turn.
	ShowChanges bool
}

const chatHelp = `commands:
  /actions               list what the current role accepts
  /do <action> [k=v...]  invoke an action directly (operator actions included)
  /context               print the session context
  /transcript            print the call so far
  /quit                  hang up`

// RunChat plays a call on the terminal: each input line is one utterance.
// The session is closed when input ends, on /quit, or when ctx is done.
func RunChat(ctx context.Context, mgr *session.Manager, in io.Reader, out io.Writer, opts ChatOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tui.NewPlainPrinter(out)
	if opts.Interactive {
		p = tui.NewPrinter(out)
	}

	conv, res, err := mgr.Open(ctx, opts.SessionID, opts.Handshake, nil)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		_ = mgr.Close(closeCtx, conv.ID())
	}()

	if opts.Interactive {
		p.System("session %s (type /help for commands)", conv.ID())
	}
	printTurn(p, res, opts.ShowChanges)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		if opts.Interactive {
			p.Prompt(conv.Context().Role)
		}

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runCommand(ctx, conv, p, line, opts.ShowChanges)
			if err != nil {
				p.Error(err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := conv.HandleUtterance(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			p.Error(err)
			continue
		}
		printTurn(p, res, opts.ShowChanges)
	}
}

func runCommand(ctx context.Context, conv *session.Conversation, p *tui.Printer, line string, showChanges bool) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/bye":
		p.System("call ended")
		return true, nil
	case "/help":
		p.System(chatHelp)
	case "/actions":
		p.Actions(conv.Actions())
	case "/context":
		data, err := json.MarshalIndent(conv.Context(), "", "  ")
		if err != nil {
			return false, err
		}
		p.System("%s", data)
	case "/transcript":
		for _, e := range conv.Transcript() {
			p.System("%s %-5s [%s] %s", e.At.Format("15:04:05"), e.Speaker, e.Role, e.Text)
		}
	case "/do":
		if len(fields) < 2 {
			return false, errors.New("usage: /do <action> [key=value...]")
		}
		action, err := domain.ParseAction(fields[1])
		if err != nil {
			return false, err
		}
		call := domain.ToolCall{Action: action, Args: parseArgs(fields[2:])}
		res, err := conv.InvokeAsOperator(ctx, call)
		printTurn(p, res, showChanges)
		return false, err
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}

func parseArgs(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	args := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		k, v, _ := strings.Cut(kv, "=")
		args[k] = v
	}
	return args
}

func printTurn(p *tui.Printer, res domain.TurnResult, showChanges bool) {
	for _, r := range res.Replies {
		p.Reply(res.Role, r)
	}
	if showChanges {
		p.Changes(res.Changes)
	}
}
