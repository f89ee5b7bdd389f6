package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/portfolio/internal/prompt"
	"github.com/ashureev/portfolio/internal/widget"
	"github.com/spf13/cobra"
)

func runAskCommand(cmd *cobra.Command, args []string) error {
	c, closeFn, err := openController(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	_, err = submit(cmd.Context(), c, cmd.OutOrStdout(), strings.Join(args, " "))
	return err
}

func runChatCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, closeFn, err := openController(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, Styles.Box.Render(Styles.Title.Render("Portfolio assistant")+"\n"+
		Styles.Muted.Render("/clear  /toggle  /quit  or a number to pick a suggestion")))
	for _, m := range c.Messages() {
		printMessage(out, m)
	}

	var suggestions []string
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, Styles.User.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := c.Clear(ctx); err != nil {
				printWarning(out, "Could not clear the conversation: "+err.Error())
			}
			suggestions = nil
			fmt.Fprintln(out, Styles.Muted.Render("Conversation cleared."))
			continue
		case "/toggle":
			open, err := c.Toggle(ctx)
			if err != nil {
				printWarning(out, "Could not save the widget state: "+err.Error())
			}
			fmt.Fprintln(out, Styles.Muted.Render("Widget open: "+strconv.FormatBool(open)))
			continue
		}

		if n, convErr := strconv.Atoi(line); convErr == nil && n >= 1 && n <= len(suggestions) {
			line = suggestions[n-1]
			fmt.Fprintln(out, Styles.Muted.Render(line))
		}

		reply, err := submit(ctx, c, out, line)
		if err != nil && !isReported(err) {
			return err
		}
		suggestions = reply.Suggestions
	}
}

// submit sends text through the controller, rendering chunks as they arrive
// and the suggestions afterwards.
func submit(ctx context.Context, c *widget.Controller, out io.Writer, text string) (widget.Reply, error) {
	fmt.Fprint(out, speaker("assistant")+" ")
	fw := &footerWriter{w: out}
	reply, err := c.Submit(ctx, text, fw.Write)
	if reply.Local {
		fmt.Fprint(out, reply.Message.Content)
	} else {
		fw.Flush()
	}
	fmt.Fprintln(out)
	printSuggestions(out, reply.Suggestions)
	return reply, err
}

// isReported reports whether err was already shown to the user as a local
// assistant message.
func isReported(err error) bool {
	var rl *widget.RateLimitedError
	var rej *widget.RejectedError
	var se *widget.ServerError
	return errors.As(err, &rl) || errors.As(err, &rej) || errors.As(err, &se) || errors.Is(err, widget.ErrBusy)
}

// footerWriter prints streamed text up to the suggestions delimiter. It holds
// back a tail that could be the start of the delimiter.
type footerWriter struct {
	w       io.Writer
	buf     strings.Builder
	written int
	done    bool
}

func (f *footerWriter) Write(chunk string) {
	if f.done {
		return
	}
	f.buf.WriteString(chunk)
	s := f.buf.String()

	if i := strings.Index(s, prompt.SuggestionsDelimiter); i >= 0 {
		f.emit(strings.TrimRight(s[:i], "\n "))
		f.done = true
		return
	}

	safe := len(s) - len(prompt.SuggestionsDelimiter) + 1
	for safe > f.written && safe < len(s) && !utf8.RuneStart(s[safe]) {
		safe--
	}
	if safe > f.written {
		f.emit(s[:safe])
	}
}

// Flush prints whatever was held back once the stream has ended.
func (f *footerWriter) Flush() {
	if f.done {
		return
	}
	f.emit(f.buf.String())
	f.done = true
}

func (f *footerWriter) emit(upto string) {
	if len(upto) > f.written {
		fmt.Fprint(f.w, upto[f.written:])
		f.written = len(upto)
	}
}
