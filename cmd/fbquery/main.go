// Package main implements fbquery, a command line tool that runs one SQL
// statement against a database through the loopback provider and prints the
// result rows tab separated.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/tomyedwab/fbdriver"
	"github.com/tomyedwab/fbdriver/native/loopback"
)

const defaultFetchSize = 100

// Config holds the CLI configuration parameters
type Config struct {
	Database       string // Required: database file
	User           string // Optional: falls back to ISC_USER
	Password       string // Set by the password prompt
	PasswordPrompt bool   // Optional: read the password from the terminal
	Create         bool   // Optional: create the database before running the statement
	FetchSize      int    // Optional: rows per fetch, defaults to 100
	Verbose        bool   // Optional: debug logging
	SQL            string // Required: statement to run
}

// validateConfig validates the configuration and returns an error if invalid
func validateConfig(config *Config) error {
	if config.Database == "" {
		return fmt.Errorf("database is required")
	}
	if strings.TrimSpace(config.SQL) == "" {
		return fmt.Errorf("SQL statement is required")
	}
	if config.FetchSize <= 0 {
		return fmt.Errorf("fetch size must be positive, got %d", config.FetchSize)
	}
	return nil
}

// printUsage prints the CLI usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, `fbquery

Runs one SQL statement and prints the result rows tab separated.

Usage:
  %s [options] SQL

Options:
`, os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  %s -db=test.db -create "CREATE TABLE t (id INTEGER, name VARCHAR(20))"
  %s -db=test.db -user=SYSDBA -password-prompt "SELECT id, name FROM t"

`, os.Args[0], os.Args[0])
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func main() {
	var config Config
	var showHelp bool

	flag.StringVar(&config.Database, "db", "", "Database file (required)")
	flag.StringVar(&config.User, "user", "", "User name, defaults to $ISC_USER")
	flag.BoolVar(&config.PasswordPrompt, "password-prompt", false, "Prompt for the password, defaults to $ISC_PASSWORD")
	flag.BoolVar(&config.Create, "create", false, "Create the database first")
	flag.IntVar(&config.FetchSize, "fetch-size", defaultFetchSize, "Rows fetched per round trip")
	flag.BoolVar(&config.Verbose, "v", false, "Enable debug logging")
	flag.BoolVar(&showHelp, "help", false, "Show this help message")
	flag.BoolVar(&showHelp, "h", false, "Show this help message")
	flag.Usage = printUsage
	flag.Parse()

	if showHelp {
		printUsage()
		os.Exit(0)
	}

	config.SQL = strings.Join(flag.Args(), " ")
	if err := validateConfig(&config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}

	if config.PasswordPrompt {
		password, err := promptPassword()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		config.Password = password
	}

	level := slog.LevelWarn
	if config.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, &config, logger, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes config.SQL in one transaction and writes any rows to out.
func run(ctx context.Context, config *Config, logger *slog.Logger, out io.Writer) (err error) {
	provider := loopback.NewProvider(loopback.Config{Logger: logger})
	client, err := fbdriver.NewClient(provider, fbdriver.Config{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, client.Dispose(context.WithoutCancel(ctx)))
	}()

	opts := fbdriver.ConnectOptions{Username: config.User, Password: config.Password}
	var att *fbdriver.Attachment
	if config.Create {
		att, err = client.CreateDatabase(ctx, config.Database, &fbdriver.CreateDatabaseOptions{ConnectOptions: opts})
	} else {
		att, err = client.Connect(ctx, config.Database, &opts)
	}
	if err != nil {
		return err
	}
	logger.Debug("Attached", "database", config.Database)

	tx, err := att.StartTransaction(ctx, nil)
	if err != nil {
		return err
	}
	if err := runStatement(ctx, att, tx, config, out); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			logger.Warn("Failed to roll back", "error", rollbackErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	return att.Disconnect(ctx)
}

func runStatement(ctx context.Context, att *fbdriver.Attachment, tx *fbdriver.Transaction, config *Config, out io.Writer) error {
	st, err := att.Prepare(ctx, tx, config.SQL)
	if err != nil {
		return err
	}
	defer st.Dispose(ctx)

	if !st.HasResultSet() {
		return st.Execute(ctx, tx)
	}

	rs, err := st.ExecuteQuery(ctx, tx)
	if err != nil {
		return err
	}
	defer rs.Close(ctx)

	if _, err := fmt.Fprintln(out, strings.Join(rs.Columns(), "\t")); err != nil {
		return err
	}
	for !rs.Finished() {
		rows, err := rs.Fetch(ctx, &fbdriver.FetchOptions{FetchSize: config.FetchSize})
		if err != nil {
			return err
		}
		if err := printRows(ctx, att, tx, out, rows); err != nil {
			return err
		}
	}
	return nil
}

// printRows writes rows tab separated, one per line.
func printRows(ctx context.Context, att *fbdriver.Attachment, tx *fbdriver.Transaction, out io.Writer, rows []fbdriver.Row) error {
	for _, row := range rows {
		fields := make([]string, len(row))
		for i, v := range row {
			s, err := formatValue(ctx, att, tx, v)
			if err != nil {
				return err
			}
			fields[i] = s
		}
		if _, err := fmt.Fprintln(out, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(ctx context.Context, att *fbdriver.Attachment, tx *fbdriver.Transaction, v fbdriver.Value) (string, error) {
	switch x := v.(type) {
	case fbdriver.Null:
		return "NULL", nil
	case fbdriver.DateTime:
		return x.Time.Format(time.RFC3339Nano), nil
	case *fbdriver.Blob:
		data, err := att.ReadBlob(ctx, tx, x)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return fmt.Sprint(v.Any()), nil
}
