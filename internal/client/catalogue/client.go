// Package catalogue implements product.Client over the catalogue service's
// REST API.
package catalogue

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/ogen-go/ogen/ogenerrors"
	"github.com/ogen-go/ogen/validate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/catalogue-manager/internal/domain/product"
)

// maxBodySize bounds how much of a response body is read into memory.
const maxBodySize = 4 << 20

// Media types accepted for product bodies and for 400 responses.
var (
	productTypes = []string{"application/json"}
	problemTypes = []string{"application/json", "application/problem+json"}
)

var _ product.Client = (*Client)(nil)

// HTTPClient is the subset of *http.Client used to reach the catalogue
// service. Credentials are expected to be attached by its transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the dependencies of a Client.
type Config struct {
	// BaseURL is the catalogue API root, e.g. http://localhost:8081/catalogue-api.
	// Product resources live under BaseURL/products.
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient HTTPClient

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Client is a stateless, concurrency-safe product.Client backed by HTTP.
type Client struct {
	products *url.URL
	http     HTTPClient
	tel      *telemetry
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalogue base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse catalogue base URL")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("catalogue base URL %q must be absolute", cfg.BaseURL)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	tel, err := newTelemetry(cfg.TracerProvider, cfg.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "init telemetry")
	}

	return &Client{
		products: base.JoinPath("products"),
		http:     cfg.HTTPClient,
		tel:      tel,
	}, nil
}

// FindAllProducts lists products in server order. The filter query
// parameter is only sent when filter is non-empty.
func (c *Client) FindAllProducts(ctx context.Context, filter string) (_ []product.Product, err error) {
	ctx, done := c.tel.start(ctx, "FindAllProducts")
	status := 0
	defer func() { done(status, err) }()

	u := *c.products
	if filter != "" {
		q := url.Values{}
		q.Set("filter", filter)
		u.RawQuery = q.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, &u, nil)
	status = resp.status
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, c.statusError(http.MethodGet, &u, resp)
	}
	return decodeBody(resp, productTypes, decodeProductList)
}

// FindProduct fetches a single product. A 404 from the service is reported
// as ok == false with a nil error.
func (c *Client) FindProduct(ctx context.Context, id int) (_ product.Product, _ bool, err error) {
	ctx, done := c.tel.start(ctx, "FindProduct")
	status := 0
	defer func() { done(status, err) }()

	u := c.productURL(id)
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	status = resp.status
	if err != nil {
		return product.Product{}, false, err
	}
	switch {
	case status == http.StatusNotFound:
		return product.Product{}, false, nil
	case !isSuccess(status):
		return product.Product{}, false, c.statusError(http.MethodGet, u, resp)
	}

	p, err := decodeBody(resp, productTypes, decodeProductBody)
	if err != nil {
		return product.Product{}, false, err
	}
	return p, true, nil
}

// CreateProduct creates a product and returns it as stored by the service,
// including the assigned ID.
func (c *Client) CreateProduct(ctx context.Context, payload product.NewProductPayload) (_ product.Product, err error) {
	ctx, done := c.tel.start(ctx, "CreateProduct")
	status := 0
	defer func() { done(status, err) }()

	u := c.products
	resp, err := c.do(ctx, http.MethodPost, u, encodePayload(payload.Title, payload.Details))
	status = resp.status
	if err != nil {
		return product.Product{}, err
	}
	switch {
	case status == http.StatusBadRequest:
		return product.Product{}, validationError(resp)
	case !isSuccess(status):
		return product.Product{}, c.statusError(http.MethodPost, u, resp)
	}
	return decodeBody(resp, productTypes, decodeProductBody)
}

// UpdateProduct applies payload to the product with the given id.
func (c *Client) UpdateProduct(ctx context.Context, id int, payload product.UpdateProductPayload) (err error) {
	ctx, done := c.tel.start(ctx, "UpdateProduct")
	status := 0
	defer func() { done(status, err) }()

	u := c.productURL(id)
	resp, err := c.do(ctx, http.MethodPatch, u, encodePayload(payload.Title, payload.Details))
	status = resp.status
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusBadRequest:
		return validationError(resp)
	case !isSuccess(status):
		return c.statusError(http.MethodPatch, u, resp)
	}
	return nil
}

// DeleteProduct removes the product with the given id. Deleting a missing
// product surfaces the service's 404 as a *StatusError.
func (c *Client) DeleteProduct(ctx context.Context, id int) (err error) {
	ctx, done := c.tel.start(ctx, "DeleteProduct")
	status := 0
	defer func() { done(status, err) }()

	u := c.productURL(id)
	resp, err := c.do(ctx, http.MethodDelete, u, nil)
	status = resp.status
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return c.statusError(http.MethodDelete, u, resp)
	}
	return nil
}

func (c *Client) productURL(id int) *url.URL {
	return c.products.JoinPath(strconv.Itoa(id))
}

// response is a fully read catalogue response.
type response struct {
	status      int
	contentType string
	body        []byte
}

// do sends one request and reads the response. The body is always fully
// read and closed.
func (c *Client) do(ctx context.Context, method string, u *url.URL, payload []byte) (response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return response{}, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	lg := zctx.From(ctx).With(zap.String("method", method), zap.String("url", u.String()))

	resp, err := c.http.Do(req)
	if err != nil {
		lg.Debug("Catalogue request failed", zap.Error(err))
		return response{}, errors.Wrapf(err, "%s %s", method, u.Path)
	}
	defer func() { _ = resp.Body.Close() }()

	out := response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
	}
	out.body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return out, errors.Wrap(err, "read response body")
	}

	lg.Debug("Catalogue request", zap.Int("status", resp.StatusCode))
	return out, nil
}

// decodeBody checks the media type of resp against accepted and decodes
// its body. Failures are reported with ogen's runtime error types.
func decodeBody[T any](resp response, accepted []string, decode func([]byte) (T, error)) (T, error) {
	var zero T
	ct, _, err := mime.ParseMediaType(resp.contentType)
	if err != nil {
		return zero, errors.Wrap(err, "parse media type")
	}
	if !slices.Contains(accepted, ct) {
		return zero, validate.InvalidContentType(ct)
	}
	v, err := decode(resp.body)
	if err != nil {
		return zero, &ogenerrors.DecodeBodyError{
			ContentType: ct,
			Body:        resp.body,
			Err:         err,
		}
	}
	return v, nil
}

func (c *Client) statusError(method string, u *url.URL, resp response) error {
	return &StatusError{
		Method:     method,
		URL:        u.String(),
		StatusCode: resp.status,
		Body:       resp.body,
	}
}

func validationError(resp response) error {
	messages, err := decodeBody(resp, problemTypes, decodeValidationErrors)
	if err != nil {
		return errors.Wrap(err, "bad request")
	}
	return &product.ValidationError{Errors: messages}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
