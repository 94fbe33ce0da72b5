package catalogue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/ogenerrors"
	"github.com/ogen-go/ogen/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalogue-manager/internal/domain/product"
)

// recordedRequest is what the stub server saw for one call.
type recordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Query    map[string][]string
	Header   http.Header
	Body     string
}

type stubResponse struct {
	status      int
	contentType string
	body        string
}

// stubCatalogue plays the catalogue service: it answers every request with
// the response registered for "METHOD path" and records what it received.
type stubCatalogue struct {
	t         *testing.T
	mu        sync.Mutex
	responses map[string]stubResponse
	requests  []recordedRequest
	server    *httptest.Server
}

func newStubCatalogue(t *testing.T) *stubCatalogue {
	t.Helper()

	s := &stubCatalogue{t: t, responses: make(map[string]stubResponse)}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubCatalogue) on(method, path string, status int, contentType, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method+" "+path] = stubResponse{status: status, contentType: contentType, body: body}
}

func (s *stubCatalogue) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Query:    r.URL.Query(),
		Header:   r.Header.Clone(),
		Body:     string(body),
	})
	resp, ok := s.responses[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	if resp.contentType != "" {
		w.Header().Set("Content-Type", resp.contentType)
	}
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (s *stubCatalogue) lastRequest() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.requests, "no request reached the stub")
	return s.requests[len(s.requests)-1]
}

func newTestClient(t *testing.T, s *stubCatalogue) *Client {
	t.Helper()

	c, err := New(Config{BaseURL: s.server.URL + "/catalogue-api"})
	require.NoError(t, err)
	return c
}

func strPtr(s string) *string { return &s }

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "/relative", "://bad"} {
		_, err := New(Config{BaseURL: base})
		assert.Error(t, err, "base %q", base)
	}
}

func TestFindAllProducts(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products", http.StatusOK, "application/json", `[
		{"id": 1, "title": "Товар 1", "details": "Описание товара 1"},
		{"id": 2, "title": "Товар 2", "details": null}
	]`)
	c := newTestClient(t, s)

	products, err := c.FindAllProducts(context.Background(), "товар")
	require.NoError(t, err)
	assert.Equal(t, []product.Product{
		{ID: 1, Title: "Товар 1", Details: "Описание товара 1"},
		{ID: 2, Title: "Товар 2"},
	}, products)

	req := s.lastRequest()
	assert.Equal(t, []string{"товар"}, req.Query["filter"])
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
}

func TestFindAllProducts_NoFilter(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products", http.StatusOK, "application/json", `[]`)
	c := newTestClient(t, s)

	products, err := c.FindAllProducts(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)

	req := s.lastRequest()
	assert.Empty(t, req.RawQuery)
	assert.NotContains(t, req.Query, "filter")
}

func TestFindAllProducts_ServerError(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products", http.StatusInternalServerError, "", "boom")
	c := newTestClient(t, s)

	_, err := c.FindAllProducts(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
}

func TestFindProduct(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products/1", http.StatusOK, "application/json",
		`{"id":1,"title":"T","details":"D"}`)
	c := newTestClient(t, s)

	p, ok, err := c.FindProduct(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, product.Product{ID: 1, Title: "T", Details: "D"}, p)
}

func TestFindProduct_NotFound(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products/1", http.StatusNotFound, "", "")
	c := newTestClient(t, s)

	p, ok, err := c.FindProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, product.Product{}, p)
}

func TestFindProduct_UnexpectedStatus(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products/1", http.StatusForbidden, "", "")
	c := newTestClient(t, s)

	_, ok, err := c.FindProduct(context.Background(), 1)
	assert.False(t, ok)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, http.MethodGet, se.Method)
}

func TestFindProduct_MalformedBody(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products/1", http.StatusOK, "application/json", `{"title":"T"}`)
	c := newTestClient(t, s)

	_, ok, err := c.FindProduct(context.Background(), 1)
	assert.False(t, ok)

	var de *ogenerrors.DecodeBodyError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Equal(t, "application/json", de.ContentType)
	assert.Equal(t, `{"title":"T"}`, string(de.Body))
}

func TestFindProduct_UnexpectedContentType(t *testing.T) {
	for _, ct := range []string{"text/html; charset=utf-8", ""} {
		t.Run(ct, func(t *testing.T) {
			s := newStubCatalogue(t)
			s.on(http.MethodGet, "/catalogue-api/products/1", http.StatusOK, ct, `{"id":1,"title":"T"}`)
			c := newTestClient(t, s)

			_, ok, err := c.FindProduct(context.Background(), 1)
			require.Error(t, err)
			assert.False(t, ok)
		})
	}

	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products", http.StatusOK, "text/html", `[]`)
	c := newTestClient(t, s)

	_, err := c.FindAllProducts(context.Background(), "")
	var ie *validate.InvalidContentTypeError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "text/html", ie.ContentType)
}

func TestCreateProduct(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodPost, "/catalogue-api/products", http.StatusCreated, "application/json",
		`{"id":42,"title":"Новый товар","details":"Описание нового товара"}`)
	c := newTestClient(t, s)

	p, err := c.CreateProduct(context.Background(), product.NewProductPayload{
		Title:   "Новый товар",
		Details: strPtr("Описание нового товара"),
	})
	require.NoError(t, err)
	assert.Equal(t, product.Product{ID: 42, Title: "Новый товар", Details: "Описание нового товара"}, p)

	req := s.lastRequest()
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"title":"Новый товар","details":"Описание нового товара"}`, req.Body)
}

func TestCreateProduct_NilDetailsSentAsNull(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodPost, "/catalogue-api/products", http.StatusCreated, "application/json",
		`{"id":7,"title":"X","details":null}`)
	c := newTestClient(t, s)

	p, err := c.CreateProduct(context.Background(), product.NewProductPayload{Title: "X"})
	require.NoError(t, err)
	assert.Equal(t, 7, p.ID)
	assert.JSONEq(t, `{"title":"X","details":null}`, s.lastRequest().Body)
}

func TestCreateProduct_ServerNormalizes(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodPost, "/catalogue-api/products", http.StatusCreated, "application/json",
		`{"id":3,"title":"Trimmed","details":""}`)
	c := newTestClient(t, s)

	p, err := c.CreateProduct(context.Background(), product.NewProductPayload{Title: "  Trimmed  "})
	require.NoError(t, err)
	assert.Equal(t, "Trimmed", p.Title)
}

func TestWrites_ValidationError(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        []string
	}{
		{
			name:        "plain json",
			contentType: "application/json",
			body:        `{"errors":["a","b"]}`,
			want:        []string{"a", "b"},
		},
		{
			name:        "problem json",
			contentType: "application/problem+json",
			body: `{"type":"about:blank","title":"Bad Request","status":400,
				"errors":["Ошибка 1","Ошибка 2"],"instance":"/catalogue-api/products"}`,
			want: []string{"Ошибка 1", "Ошибка 2"},
		},
		{
			name:        "missing errors field",
			contentType: "application/problem+json",
			body:        `{"title":"Bad Request","status":400}`,
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/create", func(t *testing.T) {
			s := newStubCatalogue(t)
			s.on(http.MethodPost, "/catalogue-api/products", http.StatusBadRequest, tt.contentType, tt.body)
			c := newTestClient(t, s)

			_, err := c.CreateProduct(context.Background(), product.NewProductPayload{Title: " "})

			var ve *product.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.want, ve.Errors)
		})
		t.Run(tt.name+"/update", func(t *testing.T) {
			s := newStubCatalogue(t)
			s.on(http.MethodPatch, "/catalogue-api/products/1", http.StatusBadRequest, tt.contentType, tt.body)
			c := newTestClient(t, s)

			err := c.UpdateProduct(context.Background(), 1, product.UpdateProductPayload{Title: " "})

			var ve *product.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.want, ve.Errors)
		})
	}
}

func TestCreateProduct_UndecodableBadRequest(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodPost, "/catalogue-api/products", http.StatusBadRequest, "text/plain", "nope")
	c := newTestClient(t, s)

	_, err := c.CreateProduct(context.Background(), product.NewProductPayload{Title: "x"})
	require.Error(t, err)

	var ve *product.ValidationError
	assert.False(t, errors.As(err, &ve))
}

func TestCreateProduct_OtherStatusNotSuppressed(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodPost, "/catalogue-api/products", http.StatusConflict, "application/json", `{"errors":["dup"]}`)
	c := newTestClient(t, s)

	_, err := c.CreateProduct(context.Background(), product.NewProductPayload{Title: "x"})
	assert.True(t, IsStatus(err, http.StatusConflict))

	var ve *product.ValidationError
	assert.False(t, errors.As(err, &ve))
}

func TestUpdateProduct(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodPatch, "/catalogue-api/products/1", http.StatusNoContent, "", "")
	c := newTestClient(t, s)

	err := c.UpdateProduct(context.Background(), 1, product.UpdateProductPayload{
		Title:   "Обновленный товар 1",
		Details: strPtr("Обновленное описание товара 1"),
	})
	require.NoError(t, err)

	req := s.lastRequest()
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.JSONEq(t, `{"title":"Обновленный товар 1","details":"Обновленное описание товара 1"}`, req.Body)
}

func TestUpdateProduct_InvalidPayload(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodPatch, "/catalogue-api/products/1", http.StatusBadRequest, "application/problem+json",
		`{"errors":["Ошибка 1","Ошибка 2"]}`)
	c := newTestClient(t, s)

	err := c.UpdateProduct(context.Background(), 1, product.UpdateProductPayload{Title: " "})

	var ve *product.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"Ошибка 1", "Ошибка 2"}, ve.Errors)
	assert.JSONEq(t, `{"title":" ","details":null}`, s.lastRequest().Body)
}

func TestUpdateProduct_NotFound(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodPatch, "/catalogue-api/products/1", http.StatusNotFound, "", "")
	c := newTestClient(t, s)

	err := c.UpdateProduct(context.Background(), 1, product.UpdateProductPayload{Title: "x"})
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestDeleteProduct(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodDelete, "/catalogue-api/products/1", http.StatusNoContent, "", "")
	c := newTestClient(t, s)

	require.NoError(t, c.DeleteProduct(context.Background(), 1))

	req := s.lastRequest()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/catalogue-api/products/1", req.Path)
	assert.Empty(t, req.Body)
}

func TestDeleteProduct_NotFound(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodDelete, "/catalogue-api/products/1", http.StatusNotFound, "", "")
	c := newTestClient(t, s)

	err := c.DeleteProduct(context.Background(), 1)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestStatusError_OnlyNotFoundMatches(t *testing.T) {
	err := errors.Wrap(&StatusError{StatusCode: http.StatusInternalServerError}, "delete")
	assert.NotErrorIs(t, err, product.ErrNotFound)
}

func TestClient_TransportFailure(t *testing.T) {
	s := newStubCatalogue(t)
	c := newTestClient(t, s)
	s.server.Close()

	_, _, err := c.FindProduct(context.Background(), 1)
	require.Error(t, err)

	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestClient_ConcurrentUse(t *testing.T) {
	s := newStubCatalogue(t)
	s.on(http.MethodGet, "/catalogue-api/products/1", http.StatusOK, "application/json",
		`{"id":1,"title":"T","details":"D"}`)
	c := newTestClient(t, s)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, ok, err := c.FindProduct(context.Background(), 1)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 1, p.ID)
		}()
	}
	wg.Wait()
}
