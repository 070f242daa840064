package cli

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tradeboard/tradeboard/internal/auth"
)

// UserUpserter persists a user record.
type UserUpserter interface {
	UpsertUser(ctx context.Context, user auth.User) error
}

// CreateUserOptions configures the create-user command.
type CreateUserOptions struct {
	Username    string
	DisplayName string
	Role        string
	MemberID    string
	Password    string
	// Store receives the user when set; otherwise a users.csv row is printed.
	Store  UserUpserter
	Header bool
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// UsersCLI offers account helpers for operators.
type UsersCLI struct{}

// NewUsersCLI constructs the helper.
func NewUsersCLI() *UsersCLI {
	return &UsersCLI{}
}

// CreateUserCommand hashes the password and either stores the user or prints
// it as a users.csv line. It returns the process exit code.
func (c *UsersCLI) CreateUserCommand(ctx context.Context, opts CreateUserOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}

	if strings.TrimSpace(opts.Username) == "" {
		fmt.Fprintln(opts.Stderr, "create-user: --username is required")
		return 2
	}
	if opts.Password == "" {
		password, err := readPassword(opts.Stdin, opts.Stderr)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "create-user: read password: %v\n", err)
			return 1
		}
		opts.Password = password
	}

	user, err := auth.NewUser(opts.Username, opts.DisplayName, opts.Role, opts.MemberID, opts.Password)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "create-user: %v\n", err)
		return 2
	}

	if opts.Store != nil {
		if err := opts.Store.UpsertUser(ctx, user); err != nil {
			fmt.Fprintf(opts.Stderr, "create-user: store: %v\n", err)
			return 1
		}
		fmt.Fprintf(opts.Stdout, "user %s saved with role %s\n", user.Username, user.Role)
		return 0
	}

	writer := csv.NewWriter(opts.Stdout)
	if opts.Header {
		_ = writer.Write(auth.UsersCSVHeader)
	}
	_ = writer.Write([]string{user.Username, user.DisplayName, user.Role, user.MemberID, user.PasswordHash})
	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(opts.Stderr, "create-user: write: %v\n", err)
		return 1
	}
	return 0
}

func readPassword(r io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
