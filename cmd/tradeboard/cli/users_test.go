package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tradeboard/tradeboard/internal/auth"
)

type recordingStore struct {
	users []auth.User
	err   error
}

func (s *recordingStore) UpsertUser(_ context.Context, user auth.User) error {
	if s.err != nil {
		return s.err
	}
	s.users = append(s.users, user)
	return nil
}

func TestCreateUserPrintsCSVRow(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := NewUsersCLI().CreateUserCommand(context.Background(), CreateUserOptions{
		Username: "uye1",
		Role:     "member",
		MemberID: "S1",
		Header:   true,
		Stdin:    strings.NewReader("gizli\n"),
		Stdout:   stdout,
		Stderr:   stderr,
	})
	require.Equal(t, 0, code, stderr.String())

	records, err := csv.NewReader(stdout).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, auth.UsersCSVHeader, records[0])
	assert.Equal(t, []string{"uye1", "", "member", "S1"}, records[1][:4])
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(records[1][4]), []byte("gizli")))
	assert.Contains(t, stderr.String(), "Password:")
}

func TestCreateUserStoresRecord(t *testing.T) {
	store := &recordingStore{}
	stdout := new(bytes.Buffer)
	code := NewUsersCLI().CreateUserCommand(context.Background(), CreateUserOptions{
		Username:    "personel",
		DisplayName: "Personel",
		Role:        "staff",
		Password:    "pass",
		Store:       store,
		Stdout:      stdout,
		Stderr:      new(bytes.Buffer),
	})
	require.Equal(t, 0, code)
	require.Len(t, store.users, 1)
	assert.Equal(t, "staff", store.users[0].Role)
	assert.Contains(t, stdout.String(), "personel")

	store.err = errors.New("db down")
	code = NewUsersCLI().CreateUserCommand(context.Background(), CreateUserOptions{
		Username: "personel", Role: "staff", Password: "pass", Store: store,
		Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer),
	})
	assert.Equal(t, 1, code)
}

func TestCreateUserRejectsInvalidInput(t *testing.T) {
	cases := []CreateUserOptions{
		{Role: "admin", Password: "x"},
		{Username: "u", Role: "guest", Password: "x"},
		{Username: "u", Role: "member", Password: "x"},
	}
	for _, opts := range cases {
		stderr := new(bytes.Buffer)
		opts.Stdout = new(bytes.Buffer)
		opts.Stderr = stderr
		assert.Equal(t, 2, NewUsersCLI().CreateUserCommand(context.Background(), opts))
		assert.NotEmpty(t, stderr.String())
	}
}
