// Package handler serves the manager HTML pages over a product.Client.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/catalogue-manager/internal/domain/product"
	"github.com/xenking/catalogue-manager/pkg/httpmiddleware"
)

// Handler renders the catalogue pages. It holds no per-request state.
type Handler struct {
	products product.Client
	pages    pages
}

// New parses the embedded page templates and returns a Handler.
func New(products product.Client) (*Handler, error) {
	p, err := parsePages()
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}
	return &Handler{products: products, pages: p}, nil
}

// ChiRoute returns the route pattern chi matched for r, e.g.
// "/catalogue/products/{id}". It is empty before routing.
func ChiRoute(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

var _ httpmiddleware.RouteFinder = ChiRoute

// Mount registers the catalogue pages on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/catalogue/products/list", http.StatusFound)
	})
	r.Route("/catalogue/products", func(r chi.Router) {
		r.Get("/list", h.ListProducts)
		r.Get("/create", h.NewProductPage)
		r.Post("/create", h.CreateProduct)
		r.Get("/{id}", h.ProductPage)
		r.Get("/{id}/edit", h.EditProductPage)
		r.Post("/{id}/edit", h.UpdateProduct)
		r.Post("/{id}/delete", h.DeleteProduct)
	})
}

// NotFound renders the 404 page for unknown paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusNotFound, pageNotFound, errorView{Error: http.StatusText(http.StatusNotFound)})
}

// ListProducts renders the product list, optionally filtered.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")

	products, err := h.products.FindAllProducts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "find products"))
		return
	}
	h.pages.render(w, r, http.StatusOK, pageList, listView{Products: products, Filter: filter})
}

// NewProductPage renders an empty creation form.
func (h *Handler) NewProductPage(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, pageNewProduct, formView{})
}

// CreateProduct creates a product from the submitted form and redirects to
// its page. Rejected payloads re-render the form with the server's messages.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	title, details, err := bindForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.products.CreateProduct(r.Context(), product.NewProductPayload{Title: title, Details: details})
	var verr *product.ValidationError
	if errors.As(err, &verr) {
		h.pages.render(w, r, http.StatusBadRequest, pageNewProduct, formView{
			Payload: newPayloadView(title, details),
			Errors:  verr.Errors,
		})
		return
	}
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "create product"))
		return
	}

	zctx.From(r.Context()).Info("Product created", zap.Int("product_id", p.ID))
	http.Redirect(w, r, productPath(p.ID), http.StatusFound)
}

// ProductPage renders a single product.
func (h *Handler) ProductPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.product(w, r)
	if !ok {
		return
	}
	h.pages.render(w, r, http.StatusOK, pageProduct, formView{Product: p})
}

// EditProductPage renders the edit form filled with the current values.
func (h *Handler) EditProductPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.product(w, r)
	if !ok {
		return
	}
	h.pages.render(w, r, http.StatusOK, pageEdit, formView{
		Product: p,
		Payload: payloadView{Title: p.Title, Details: p.Details},
	})
}

// UpdateProduct applies the submitted form to an existing product.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.product(w, r)
	if !ok {
		return
	}
	title, details, err := bindForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.products.UpdateProduct(r.Context(), p.ID, product.UpdateProductPayload{Title: title, Details: details})
	var verr *product.ValidationError
	if errors.As(err, &verr) {
		h.pages.render(w, r, http.StatusBadRequest, pageEdit, formView{
			Product: p,
			Payload: newPayloadView(title, details),
			Errors:  verr.Errors,
		})
		return
	}
	if errors.Is(err, product.ErrNotFound) {
		h.productNotFound(w, r)
		return
	}
	if err != nil {
		h.fail(w, r, errors.Wrapf(err, "update product %d", p.ID))
		return
	}

	zctx.From(r.Context()).Info("Product updated", zap.Int("product_id", p.ID))
	http.Redirect(w, r, productPath(p.ID), http.StatusFound)
}

// DeleteProduct removes an existing product and returns to the list.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.product(w, r)
	if !ok {
		return
	}
	err := h.products.DeleteProduct(r.Context(), p.ID)
	if errors.Is(err, product.ErrNotFound) {
		h.productNotFound(w, r)
		return
	}
	if err != nil {
		h.fail(w, r, errors.Wrapf(err, "delete product %d", p.ID))
		return
	}

	zctx.From(r.Context()).Info("Product deleted", zap.Int("product_id", p.ID))
	http.Redirect(w, r, "/catalogue/products/list", http.StatusFound)
}

// product loads the product named by the {id} URL parameter. When it returns
// false the response has already been written.
func (h *Handler) product(w http.ResponseWriter, r *http.Request) (product.Product, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.productNotFound(w, r)
		return product.Product{}, false
	}

	p, ok, err := h.products.FindProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, errors.Wrapf(err, "find product %d", id))
		return product.Product{}, false
	}
	if !ok {
		h.productNotFound(w, r)
		return product.Product{}, false
	}
	return p, true
}

func (h *Handler) productNotFound(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusNotFound, pageNotFound, errorView{
		Error: message(requestLanguage(r), msgProductNotFound),
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	h.pages.render(w, r, http.StatusInternalServerError, pageError, errorView{
		Error: http.StatusText(http.StatusInternalServerError),
	})
}

// bindForm reads the product form. Title is taken as submitted; details is
// nil when the field is absent.
func bindForm(r *http.Request) (title string, details *string, err error) {
	if err := r.ParseForm(); err != nil {
		return "", nil, errors.Wrap(err, "parse form")
	}
	title = r.PostForm.Get("title")
	if v, ok := r.PostForm["details"]; ok && len(v) > 0 {
		details = &v[0]
	}
	return title, details, nil
}

func productPath(id int) string {
	return "/catalogue/products/" + strconv.Itoa(id)
}
