// catalogctl is the operator tool for the movie catalog database: it applies
// the embedded migrations and grants or revokes the admin role.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Clark-Hu/movie-catalog/db"
	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/logging"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
	"github.com/Clark-Hu/movie-catalog/internal/store"
)

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }
func (usageError) ExitCode() int   { return 2 }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

type options struct {
	dbURL   string
	timeout time.Duration
	verbose bool
	command string
	args    []string
}

func parseArgs(argv []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("catalogctl", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.dbURL, "db-url", os.Getenv("DB_URL"), "PostgreSQL connection string (default $DB_URL)")
	flagSet.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline for the command")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log connection details")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, usageError{msg: usage(flagSet)}
		}
		return opts, usageError{msg: err.Error()}
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return opts, usageError{msg: usage(flagSet)}
	}
	opts.command, opts.args = rest[0], rest[1:]

	switch opts.command {
	case "migrate":
		if len(opts.args) != 0 {
			return opts, usageError{msg: "migrate takes no arguments"}
		}
	case "promote", "demote":
		if len(opts.args) != 1 || opts.args[0] == "" {
			return opts, usageError{msg: opts.command + " requires exactly one username"}
		}
	default:
		return opts, usageError{msg: fmt.Sprintf("unknown command %q\n%s", opts.command, usage(flagSet))}
	}
	if opts.dbURL == "" {
		return opts, usageError{msg: "--db-url or DB_URL is required"}
	}
	return opts, nil
}

func usage(flagSet *pflag.FlagSet) string {
	return "usage: catalogctl [flags] migrate | promote <username> | demote <username>\n\nflags:\n" + flagSet.FlagUsages()
}

func run(ctx context.Context, argv []string, out io.Writer) error {
	opts, err := parseArgs(argv)
	if err != nil {
		return err
	}

	level := "warn"
	if opts.verbose {
		level = "info"
	}
	logging.Init(logging.Config{Level: level, Format: "console"})

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	st, err := store.New(ctx, opts.dbURL, store.Options{
		MaxConns:     2,
		ConnTimeout:  10 * time.Second,
		QueryTimeout: opts.timeout,
		Logger:       logging.Logger(),
	})
	if err != nil {
		return err
	}
	defer st.Close()

	switch opts.command {
	case "migrate":
		applied, err := db.Apply(ctx, st.Pool())
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintf(out, "applied %s\n", name)
		}
		return nil
	case "promote":
		return setRole(ctx, repository.New(st).Users, opts.args[0], domain.RoleAdmin, out)
	default:
		return setRole(ctx, repository.New(st).Users, opts.args[0], domain.RoleUser, out)
	}
}

type roleSetter interface {
	SetRole(ctx context.Context, username string, role domain.Role) (domain.User, error)
}

func setRole(ctx context.Context, users roleSetter, username string, role domain.Role, out io.Writer) error {
	user, err := users.SetRole(ctx, username, role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return fmt.Errorf("set role: %w", err)
	}
	fmt.Fprintf(out, "%s (id %d, %s) is now %s\n", user.Username, user.ID, user.Email, user.Role)
	return nil
}
