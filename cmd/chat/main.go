// Terminal client for the portfolio chat assistant.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/ashureev/portfolio/internal/chat"
)

func main() {
	server := flag.String("server", envOr("PORTFOLIO_URL", "http://localhost:8080"), "portfolio server base URL")
	timeout := flag.Duration("timeout", 90*time.Second, "per-request timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *server, *timeout, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server string, timeout time.Duration, in *os.File, out io.Writer) error {
	c, err := newClient(server, timeout)
	if err != nil {
		return err
	}

	// Piped input is reported as automated and rejected by the server.
	trusted := term.IsTerminal(int(in.Fd()))

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	snap, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = c.close(context.WithoutCancel(ctx), snap.SessionID) }()

	if msg, ok := lastAssistant(snap); ok {
		printMessage(out, renderer, msg)
	}

	return loop(ctx, c, snap.SessionID, trusted, bufio.NewScanner(in), out, renderer)
}

func loop(ctx context.Context, c *client, sessionID string, trusted bool, scanner *bufio.Scanner, out io.Writer, renderer *glamour.TermRenderer) error {
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		if _, err := c.submit(ctx, sessionID, text, trusted); err != nil {
			fmt.Fprintln(out, "!", err)
			continue
		}

		snap, err := c.wait(ctx, sessionID, func() { fmt.Fprintln(out, "Searching...") })
		if err != nil {
			return err
		}
		if snap.Error != "" {
			fmt.Fprintln(out, "!", snap.Error)
		}
		if msg, ok := lastAssistant(snap); ok {
			printMessage(out, renderer, msg)
		}
	}
}

func printMessage(out io.Writer, renderer *glamour.TermRenderer, msg chat.Message) {
	rendered, err := renderer.Render(msg.Content)
	if err != nil {
		rendered = msg.Content + "\n"
	}
	fmt.Fprint(out, rendered)
	if msg.Structured != nil {
		fmt.Fprintf(out, "[%s]\n", msg.Structured.Kind)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
