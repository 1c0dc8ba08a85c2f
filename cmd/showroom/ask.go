package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/extract"
)

func askCmd() *cobra.Command {
	var (
		sessionID   string
		assistant   string
		contextFile string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime(cmd)
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			req := conversation.Request{
				SessionID: sessionID,
				Text:      strings.Join(args, " "),
				Assistant: assistant,
			}
			if contextFile != "" {
				text, err := readDocument(contextFile)
				if err != nil {
					return err
				}
				req.Context = &text
			}

			res, err := rt.Engine.Submit(cmd.Context(), req)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			printUsage(cmd.ErrOrStderr(), sessionID, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session identifier (default: a new session)")
	cmd.Flags().StringVarP(&assistant, "assistant", "a", "", "Assistant persona")
	cmd.Flags().StringVar(&contextFile, "context-file", "", "Document used as context for this question (txt, md, docx, pdf)")
	return cmd
}

func keyPointsCmd() *cobra.Command {
	var (
		count     int
		sessionID string
		text      string
	)
	cmd := &cobra.Command{
		Use:   "keypoints [file]",
		Short: "Extract key points from a document or text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 1 && text != "":
				return errors.New("pass either a file or --text, not both")
			case len(args) == 1:
				doc, err := readDocument(args[0])
				if err != nil {
					return err
				}
				text = doc
			case text == "":
				return errors.New("a file or --text is required")
			}

			rt, err := runtime(cmd)
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			res, err := rt.Engine.KeyPoints(cmd.Context(), conversation.KeyPointsRequest{
				SessionID: sessionID,
				Text:      text,
				Count:     count,
				Record:    sessionID != "",
			})
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			printUsage(cmd.ErrOrStderr(), sessionID, res)
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, fmt.Sprintf("Number of key points (%d-%d)", conversation.MinKeyPoints, conversation.MaxKeyPoints))
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Record the exchange in this session")
	cmd.Flags().StringVar(&text, "text", "", "Text to summarize")
	return cmd
}

// readDocument extracts the text of a local txt, md, docx or pdf file.
func readDocument(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	text, err := extract.Extractor{}.File(filepath.Base(path), "", f)
	if errors.Is(err, extract.ErrUnsupportedFormat) {
		return "", fmt.Errorf("%s: unsupported file type", path)
	}
	return text, err
}

// describe turns engine errors into short messages for the terminal.
func describe(err error) error {
	var se *conversation.ServiceError
	switch {
	case errors.As(err, &se):
		return fmt.Errorf("service error (%s): %s", se.Kind, se.Message)
	case errors.Is(err, conversation.ErrEmptyInput):
		return errors.New("please enter a message")
	default:
		return err
	}
}

func printUsage(w io.Writer, sessionID string, res conversation.Result) {
	estimated := ""
	if res.Estimated {
		estimated = " (estimated)"
	}
	if sessionID == "" {
		fmt.Fprintf(w, "tokens used: %d%s\n", res.TokensUsed, estimated)
		return
	}
	fmt.Fprintf(w, "session %s: tokens used %d%s, total %d\n", sessionID, res.TokensUsed, estimated, res.TotalTokens)
}
