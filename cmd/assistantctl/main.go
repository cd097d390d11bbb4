package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sniprx/assistant/backend/internal/model/chat"
	"github.com/sniprx/assistant/backend/internal/widget"
)

var (
	serverURL string
	statePath string
	verbose   bool

	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assistantctl",
		Short: "Terminal client for the SniprX assistant",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("ASSISTANT_SERVER", "http://localhost:8080"), "assistant server base URL")
	root.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "file caching the local conversation")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log client diagnostics to stderr")

	root.AddCommand(newChatCmd(), newSendCmd(), newRenameCmd(), newClearCmd(), newShowCmd())
	return root
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := openWidget(ctx)

			fmt.Println(boldGreen("SniprX assistant") + " " + faint(w.Name()))
			fmt.Println(faint("Commands: /rename <name>, /clear, /exit"))
			printMessages(w.Messages())

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print(boldGreen("You: "))
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				input := strings.TrimSpace(scanner.Text())

				switch {
				case input == "":
					continue
				case input == "/exit":
					return nil
				case input == "/clear":
					if err := w.Clear(ctx); err != nil {
						fmt.Fprintln(os.Stderr, "clear failed:", err)
						continue
					}
					w.Open(ctx)
					fmt.Println(faint("conversation cleared"))
					continue
				case strings.HasPrefix(input, "/rename "):
					name := strings.TrimSpace(strings.TrimPrefix(input, "/rename "))
					if err := w.Rename(ctx, name); err != nil {
						fmt.Fprintln(os.Stderr, "rename failed:", err)
					}
					continue
				}

				streamTo(ctx, w, input)
				if ctx.Err() != nil {
					return nil
				}
			}
		},
	}
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := openWidget(ctx)
			streamTo(ctx, w, strings.Join(args, " "))
			return nil
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name>",
		Short: "Rename the current session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := openWidget(cmd.Context())
			if w.SessionID() == "" {
				return fmt.Errorf("no session: is the server at %s reachable?", serverURL)
			}
			return w.Rename(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the current session and local history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := widget.New(serverURL, widget.WithStatePath(statePath))
			return w.Clear(cmd.Context())
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := openWidget(cmd.Context())
			fmt.Printf("%s %s\n", boldGreen(w.Name()), faint(w.SessionID()))
			printMessages(w.Messages())
			return nil
		},
	}
}

func openWidget(ctx context.Context) *widget.Widget {
	w := widget.New(serverURL, widget.WithStatePath(statePath))
	w.Open(ctx)
	return w
}

// streamTo prints only the newly arrived suffix on each update.
func streamTo(ctx context.Context, w *widget.Widget, text string) {
	fmt.Print(boldCyan("Assistant: "))
	shown := ""
	w.Send(ctx, text, func(content string) {
		if !strings.HasPrefix(content, shown) {
			// A local fallback replaced the partial reply.
			fmt.Print("\n" + faint("(offline) "))
			shown = ""
		}
		fmt.Print(content[len(shown):])
		shown = content
	})
	fmt.Println()
	fmt.Println()
}

func printMessages(messages []chat.Message) {
	for _, m := range messages {
		label := boldGreen("You")
		if m.Role == chat.RoleAssistant {
			label = boldCyan("Assistant")
		}
		if m.Time != "" {
			fmt.Printf("%s %s: %s\n", faint(m.Time), label, m.Content)
			continue
		}
		fmt.Printf("%s: %s\n", label, m.Content)
	}
	fmt.Println()
}

func defaultStatePath() string {
	if path := os.Getenv("ASSISTANT_STATE"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".assistant_widget.json"
	}
	return filepath.Join(dir, "sniprx", "assistant_widget.json")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
