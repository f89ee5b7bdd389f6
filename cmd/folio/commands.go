package main

import (
	"log/slog"
	"os"

	"github.com/ashureev/portfolio/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL string
	backend   string
	dbPath    string
	redisAddr string

	rootCmd = &cobra.Command{
		Use:   "folio",
		Short: "Chat with the portfolio assistant from a terminal",
		Long: `folio talks to the portfolio chat gateway and keeps the
conversation in a local store so it survives restarts for a day.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = godotenv.Load()
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			})))
			envOverride(cmd, "server", &serverURL, "FOLIO_SERVER")
			envOverride(cmd, "store", &backend, "FOLIO_STORE")
			envOverride(cmd, "db", &dbPath, "FOLIO_DB")
			envOverride(cmd, "redis-addr", &redisAddr, "REDIS_ADDR")
		},
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session",
		Args:  cobra.NoArgs,
		RunE:  runChatCommand, // Defined in cmd_chat.go
	}
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAskCommand, // Defined in cmd_chat.go
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Print the saved conversation",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCommand, // Defined in cmd_session.go
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved conversation",
		Args:  cobra.NoArgs,
		RunE:  runClearCommand, // Defined in cmd_session.go
	}
	validateCmd = &cobra.Command{
		Use:   "validate [text]",
		Short: "Check a message against the input rules without sending it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidateCommand, // Defined in cmd_session.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverURL, "server", "http://localhost:8080", "chat gateway base URL")
	pf.StringVar(&backend, "store", store.BackendSQLite, "conversation store: memory, sqlite, badger or redis")
	pf.StringVar(&dbPath, "db", defaultDBPath(), "sqlite file or badger directory")
	pf.StringVar(&redisAddr, "redis-addr", "localhost:6379", "redis host:port for --store=redis")

	rootCmd.AddCommand(chatCmd, askCmd, historyCmd, clearCmd, validateCmd)
}

// envOverride applies an environment value to a flag the user did not set.
func envOverride(cmd *cobra.Command, flag string, dst *string, key string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
