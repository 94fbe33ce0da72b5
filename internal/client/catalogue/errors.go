package catalogue

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/catalogue-manager/internal/domain/product"
)

// StatusError is returned when the catalogue service answers with a status
// the called operation does not interpret.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalogue: %s %s: unexpected status %d %s",
		e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is reports a 404 as product.ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == product.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsStatus reports whether err wraps a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
