package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/session"
	"github.com/itesm-showroom/showroom/pkg/app"
)

const chatHelp = `Commands:
  /context <file>    use a document (txt, md, docx, pdf) as context
  /keypoints [n]     extract n key points from the context (default 5)
  /usage             show the session token total
  /export [file]     write the transcript (default chat_history.json)
  /new               start a new session
  /quit              leave
`

// prompter reads one line of user input. io.EOF ends the chat.
type prompter interface {
	Prompt(title string) (string, error)
}

type huhPrompter struct{}

func (huhPrompter) Prompt(title string) (string, error) {
	var line string
	err := huh.NewInput().
		Title(title).
		Placeholder("Ask a question, or /help").
		Value(&line).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return "", io.EOF
	}
	return line, err
}

func chatCmd() *cobra.Command {
	var (
		sessionID string
		assistant string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtime(cmd)
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			if assistant == "" {
				names := rt.Engine.Templates().Names()
				err := huh.NewSelect[string]().
					Title("Assistant").
					Options(huh.NewOptions(names...)...).
					Value(&assistant).
					Run()
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				if err != nil {
					return err
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			c := &chat{
				rt:        rt,
				in:        huhPrompter{},
				out:       cmd.OutOrStdout(),
				sessionID: sessionID,
				assistant: assistant,
				now:       time.Now,
			}
			return c.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume this session (default: a new session)")
	cmd.Flags().StringVarP(&assistant, "assistant", "a", "", "Assistant persona (default: pick interactively)")
	return cmd
}

// chat is one interactive terminal conversation.
type chat struct {
	rt        *app.Runtime
	in        prompter
	out       io.Writer
	sessionID string
	assistant string
	now       func() time.Time
}

func (c *chat) run(ctx context.Context) error {
	if tmpl, err := c.rt.Engine.Templates().Get(c.assistant); err == nil && tmpl.Greeting != "" {
		fmt.Fprintln(c.out, tmpl.Greeting)
	}
	for {
		line, err := c.in.Prompt("You")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "/") {
			quit, err := c.command(ctx, line)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := c.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", describe(err))
		}
	}
}

// turn streams one reply to the terminal.
func (c *chat) turn(ctx context.Context, text string) error {
	events, err := c.rt.Engine.Stream(ctx, conversation.Request{
		SessionID: c.sessionID,
		Text:      text,
		Assistant: c.assistant,
	})
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case conversation.EventText:
			fmt.Fprint(c.out, ev.Text)
		case conversation.EventDone:
			fmt.Fprintln(c.out)
			printUsage(c.out, c.sessionID, *ev.Result)
		case conversation.EventError:
			fmt.Fprintln(c.out)
			return ev.Err
		}
	}
	return ctx.Err()
}

func (c *chat) command(ctx context.Context, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprint(c.out, chatHelp)
	case "/new":
		c.sessionID = uuid.NewString()
		fmt.Fprintf(c.out, "new session %s\n", c.sessionID)
	case "/context":
		if arg == "" {
			return false, errors.New("usage: /context <file>")
		}
		text, err := readDocument(arg)
		if err != nil {
			return false, err
		}
		if err := c.rt.Store.SetContext(c.sessionID, text); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "context set (%d characters)\n", len([]rune(text)))
	case "/keypoints":
		n := 5
		if arg != "" {
			if n, err = strconv.Atoi(arg); err != nil {
				return false, fmt.Errorf("invalid count %q", arg)
			}
		}
		res, err := c.rt.Engine.KeyPoints(ctx, conversation.KeyPointsRequest{
			SessionID: c.sessionID,
			Count:     n,
			Record:    true,
		})
		if err != nil {
			return false, describe(err)
		}
		fmt.Fprintln(c.out, res.Answer)
		printUsage(c.out, c.sessionID, res)
	case "/usage":
		sess, err := c.rt.Store.Get(c.sessionID)
		if errors.Is(err, session.ErrNotFound) {
			fmt.Fprintln(c.out, "no messages yet")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "session %s: %d messages, %d tokens\n", c.sessionID, len(sess.Messages), sess.TotalTokens)
	case "/export":
		if arg == "" {
			arg = session.TranscriptFilename
		}
		return false, c.export(arg)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}
	return false, nil
}

func (c *chat) export(path string) error {
	sess, err := c.rt.Store.Get(c.sessionID)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := session.NewTranscript(sess, c.now()).WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "transcript written to %s\n", path)
	return nil
}
