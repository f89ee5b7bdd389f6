package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/portfolio/internal/session"
	"github.com/ashureev/portfolio/internal/store"
	"github.com/ashureev/portfolio/internal/validation"
	"github.com/ashureev/portfolio/internal/widget"
	"github.com/spf13/cobra"
)

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "folio.db"
	}
	return filepath.Join(dir, "folio", "folio.db")
}

// openSession opens the configured backend and returns a session store over
// it. The caller must call the returned close function.
func openSession(ctx context.Context) (*session.Store, func(), error) {
	if backend == store.BackendSQLite || backend == store.BackendBadger {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	kv, err := store.Open(ctx, store.Options{
		Backend:   backend,
		Path:      dbPath,
		RedisAddr: redisAddr,
		TTL:       session.DefaultMaxAge,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	closeFn := func() {
		if err := kv.Close(); err != nil {
			printWarning(os.Stderr, "failed to close store: "+err.Error())
		}
	}
	return session.New(kv), closeFn, nil
}

// openController wires a widget controller to the gateway and mounts it.
func openController(ctx context.Context) (*widget.Controller, func(), error) {
	s, closeFn, err := openSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	c := widget.NewController(s, widget.NewClient(serverURL, nil), nil, nil)
	c.Mount(ctx)
	return c, closeFn, nil
}

func runHistoryCommand(cmd *cobra.Command, _ []string) error {
	s, closeFn, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	st := s.Load(cmd.Context())
	out := cmd.OutOrStdout()
	if len(st.Messages) == 0 {
		fmt.Fprintln(out, Styles.Muted.Render("No saved conversation."))
		return nil
	}
	for _, m := range st.Messages {
		printMessage(out, m)
	}
	return nil
}

func runClearCommand(cmd *cobra.Command, _ []string) error {
	s, closeFn, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	s.Load(cmd.Context())
	if err := s.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), Styles.StatusOK.String()+" Conversation cleared.")
	return nil
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	res := validation.Validate(strings.Join(args, " "))
	out := cmd.OutOrStdout()
	if !res.Valid {
		fmt.Fprintln(out, Styles.StatusError.String()+" "+res.Error)
		return fmt.Errorf("message rejected")
	}
	fmt.Fprintln(out, Styles.StatusOK.String()+" Valid")
	fmt.Fprintln(out, Styles.Muted.Render("sanitized: ")+res.Sanitized)
	return nil
}
