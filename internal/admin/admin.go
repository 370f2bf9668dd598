// Package admin implements the operator bootstrap commands: creating the
// first super admin, changing roles and applying migrations without starting
// the server.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
)

const minPasswordLen = 8

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLen)
)

// Accounts is the slice of the user service the commands need.
type Accounts interface {
	Register(ctx context.Context, email, password, fullName string, role models.Role) (*models.User, error)
	SetRole(ctx context.Context, email string, role models.Role) error
}

// App runs one admin command against the given accounts store.
type App struct {
	accounts Accounts
	migrate  func(ctx context.Context) error
	in       *bufio.Reader
	out      io.Writer
}

func NewApp(a Accounts, migrate func(ctx context.Context) error, in io.Reader, out io.Writer) *App {
	return &App{accounts: a, migrate: migrate, in: bufio.NewReader(in), out: out}
}

var commands = map[string]string{
	"create-operator": "create a super admin account",
	"create-user":     "create an account with -role (user, guardian, super_admin)",
	"set-role":        "change the role of an existing account",
	"migrate":         "apply pending database migrations",
}

// SplitCommand finds the first known command in args and returns it with the
// arguments that follow it. Anything before the command belongs to the
// config flags.
func SplitCommand(args []string) (string, []string) {
	for i, a := range args {
		if _, ok := commands[a]; ok {
			return a, args[i+1:]
		}
	}
	return "", nil
}

// Usage writes the command list.
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: admin [config flags] <command> [command flags]")
	for _, name := range []string{"create-operator", "create-user", "set-role", "migrate"} {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name])
	}
}

// Run executes cmd with its own flags.
func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create-operator":
		return a.createUser(ctx, args, models.RoleSuperAdmin, false)
	case "create-user":
		return a.createUser(ctx, args, models.RoleUser, true)
	case "set-role":
		return a.setRole(ctx, args)
	case "migrate":
		if err := a.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "migrations applied")
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

func (a *App) createUser(ctx context.Context, args []string, role models.Role, roleFlag bool) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "full name")
	r := string(role)
	if roleFlag {
		fs.StringVar(&r, "role", r, "account role")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	role = models.Role(r)
	if !role.Valid() {
		return common.NewError(common.ErrValidation, fmt.Sprintf("unknown role %q", r))
	}

	var err error
	if *email == "" {
		if *email, err = getSimpleText(a.in, "Email", a.out); err != nil {
			return err
		}
	}
	if *name == "" {
		if *name, err = getSimpleText(a.in, "Full name", a.out); err != nil {
			return err
		}
	}

	pw, err := a.readNewPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	u, err := a.accounts.Register(ctx, *email, string(pw), strings.TrimSpace(*name), role)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	fmt.Fprintf(a.out, "created %s (%s) id=%s\n", u.Email, u.Role, u.ID)
	return nil
}

func (a *App) readNewPassword() ([]byte, error) {
	pw, err := getPassword(a.out, "Password")
	if err != nil {
		return nil, err
	}
	again, err := getPassword(a.out, "Repeat password")
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pw, again) {
		common.WipeByteArray(pw)
		return nil, ErrPasswordMismatch
	}
	if len(pw) < minPasswordLen {
		common.WipeByteArray(pw)
		return nil, ErrPasswordTooShort
	}
	return pw, nil
}

func (a *App) setRole(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-role", flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "account email")
	role := fs.String("role", "", "new role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *role == "" {
		return common.NewError(common.ErrValidation, "-email and -role are required")
	}
	if err := a.accounts.SetRole(ctx, *email, models.Role(*role)); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	fmt.Fprintf(a.out, "%s is now %s\n", *email, *role)
	return nil
}
