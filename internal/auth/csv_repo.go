package auth

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tradeboard/tradeboard/internal/shared"
)

// UsersCSVHeader is the column layout of users.csv.
var UsersCSVHeader = []string{"username", "display_name", "role", "member_id", "password_hash"}

// CSVRepository reads users from a users.csv file. The file is read on every
// lookup so edits take effect without a restart.
type CSVRepository struct {
	path string
}

// NewCSVRepository returns a repository over path.
func NewCSVRepository(path string) *CSVRepository {
	return &CSVRepository{path: path}
}

// FindByUsername returns the first row whose username matches exactly.
func (r *CSVRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("auth: open users file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return findInCSV(ctx, f, username)
}

func findInCSV(ctx context.Context, src io.Reader, username string) (*User, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: read users header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	if _, ok := index["username"]; !ok {
		return nil, errors.New("auth: users file has no username column")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil, shared.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("auth: read users file: %w", err)
		}
		get := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		if get("username") != username {
			continue
		}
		return &User{
			Username:     username,
			DisplayName:  get("display_name"),
			Role:         get("role"),
			MemberID:     get("member_id"),
			PasswordHash: get("password_hash"),
			IsActive:     true,
		}, nil
	}
}

var _ Repository = (*CSVRepository)(nil)
