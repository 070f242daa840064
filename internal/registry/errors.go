package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSellerFilterForbidden is returned when a member selects on seller id.
	ErrSellerFilterForbidden = errors.New("registry: seller filter requires admin or staff role")
	// ErrUnknownFilterField is returned for selections on undeclared fields.
	ErrUnknownFilterField = errors.New("registry: unknown filter field")
)

// SchemaError reports required columns absent from the source.
type SchemaError struct {
	Missing []string
	Present []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("registry: missing required columns [%s]; present columns [%s]",
		strings.Join(e.Missing, ", "), strings.Join(e.Present, ", "))
}

// AccessConfigError reports an identity whose scope cannot be resolved.
type AccessConfigError struct {
	Username string
	Reason   string
}

func (e *AccessConfigError) Error() string {
	return fmt.Sprintf("registry: access for %q cannot be resolved: %s", e.Username, e.Reason)
}
