package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/postika/postika/internal/platform"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "grant-super-admin":
		return runGrantSuperAdmin(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  postika admin grant-super-admin --email user@example.com [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - The user must already exist (sign in once first).")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to PK_DB_DSN.")
}

func runGrantSuperAdmin(args []string) int {
	fs := flag.NewFlagSet("grant-super-admin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var dbDSN string

	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to PK_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	if dbDSN == "" {
		dbDSN = strings.TrimSpace(os.Getenv("PK_DB_DSN"))
	}
	if dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set PK_DB_DSN)")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	userID, err := platform.GrantSuperAdmin(ctx, pool, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to grant super admin: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Granted SUPER_ADMIN to %s (%s)\n", email, userID)
	return 0
}
