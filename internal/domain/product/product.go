package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is matched by errors returned for a product the catalogue
// service does not know.
var ErrNotFound = errors.New("product not found")

// Product represents a catalogue item as stored by the catalogue service.
// The ID is assigned remotely and never changed by this application.
type Product struct {
	ID      int
	Title   string
	Details string
}

// NewProductPayload holds the fields submitted when creating a product.
// A nil Details is sent to the catalogue service as JSON null.
type NewProductPayload struct {
	Title   string
	Details *string
}

// UpdateProductPayload holds the fields submitted when editing a product.
type UpdateProductPayload struct {
	Title   string
	Details *string
}

// ValidationError is returned by write operations when the catalogue service
// rejects the payload. Errors keeps the order of the server's messages.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Client defines the product operations offered by the catalogue service.
//
// FindProduct reports ok == false when the product does not exist.
// CreateProduct and UpdateProduct return *ValidationError when the service
// rejects the payload. UpdateProduct and DeleteProduct return an error
// matching ErrNotFound for a missing product.
type Client interface {
	FindAllProducts(ctx context.Context, filter string) ([]Product, error)
	FindProduct(ctx context.Context, id int) (p Product, ok bool, err error)
	CreateProduct(ctx context.Context, payload NewProductPayload) (Product, error)
	UpdateProduct(ctx context.Context, id int, payload UpdateProductPayload) error
	DeleteProduct(ctx context.Context, id int) error
}
