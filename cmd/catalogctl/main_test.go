package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
	"github.com/Clark-Hu/movie-catalog/internal/testdb"
)

func TestParseArgs(t *testing.T) {
	t.Setenv("DB_URL", "postgres://env/catalog")

	tests := []struct {
		name    string
		argv    []string
		wantErr string
		command string
		dbURL   string
	}{
		{name: "migrate from env", argv: []string{"migrate"}, command: "migrate", dbURL: "postgres://env/catalog"},
		{name: "flag overrides env", argv: []string{"--db-url", "postgres://flag/catalog", "promote", "alice"}, command: "promote", dbURL: "postgres://flag/catalog"},
		{name: "demote", argv: []string{"demote", "bob"}, command: "demote", dbURL: "postgres://env/catalog"},
		{name: "no command", argv: nil, wantErr: "usage"},
		{name: "unknown command", argv: []string{"drop"}, wantErr: "unknown command"},
		{name: "promote without user", argv: []string{"promote"}, wantErr: "exactly one username"},
		{name: "migrate with args", argv: []string{"migrate", "extra"}, wantErr: "no arguments"},
		{name: "bad flag", argv: []string{"--nope", "migrate"}, wantErr: "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseArgs(tt.argv)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				if coder, ok := err.(interface{ ExitCode() int }); !ok || coder.ExitCode() != 2 {
					t.Fatalf("usage errors should exit 2")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts.command != tt.command || opts.dbURL != tt.dbURL {
				t.Fatalf("opts = %+v", opts)
			}
		})
	}
}

func TestParseArgs_RequiresDBURL(t *testing.T) {
	t.Setenv("DB_URL", "")
	if _, err := parseArgs([]string{"migrate"}); err == nil || !strings.Contains(err.Error(), "DB_URL") {
		t.Fatalf("error = %v, want DB_URL hint", err)
	}
}

func TestSetRole(t *testing.T) {
	pool := testdb.New(t, 46000)
	repo := repository.NewWithPool(pool, 10*time.Second)
	ctx := context.Background()

	if _, err := repo.Users.Create(ctx, repository.UserCreateParams{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "x",
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	var out bytes.Buffer
	if err := setRole(ctx, repo.Users, "alice", domain.RoleAdmin, &out); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !strings.Contains(out.String(), "is now admin") {
		t.Fatalf("output = %q", out.String())
	}
	user, err := repo.Users.GetByEmail(ctx, "alice@example.com")
	if err != nil || user.Role != domain.RoleAdmin {
		t.Fatalf("user after promote = %+v, %v", user, err)
	}

	if err := setRole(ctx, repo.Users, "alice", domain.RoleUser, &out); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if err := setRole(ctx, repo.Users, "ghost", domain.RoleAdmin, &out); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("missing user error = %v", err)
	}
}
