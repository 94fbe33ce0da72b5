package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/catalogue-manager/internal/domain/product"
	"github.com/xenking/catalogue-manager/internal/security"
)

//go:embed templates
var templateFS embed.FS

// Page names, relative to the templates directory without extension.
const (
	pageList       = "catalogue/products/list"
	pageNewProduct = "catalogue/products/new_product"
	pageProduct    = "catalogue/products/product"
	pageEdit       = "catalogue/products/edit"
	pageNotFound   = "errors/404"
	pageError      = "errors/500"
)

var pageNames = []string{pageList, pageNewProduct, pageProduct, pageEdit, pageNotFound, pageError}

type pages map[string]*template.Template

func parsePages() (pages, error) {
	p := make(pages, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
		p[name] = t
	}
	return p, nil
}

// payloadView is the form state shown back to the manager.
type payloadView struct {
	Title   string
	Details string
}

func newPayloadView(title string, details *string) payloadView {
	v := payloadView{Title: title}
	if details != nil {
		v.Details = *details
	}
	return v
}

type listView struct {
	Products []product.Product
	Filter   string
}

type formView struct {
	Product product.Product
	Payload payloadView
	Errors  []string
}

type errorView struct {
	Error string
}

// layoutView is what the layout sees. Pages render View.
type layoutView struct {
	Lang    string
	Manager string
	View    any
}

// render executes page into a buffer first so that a template failure can
// still produce a 500.
func (p pages) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	v := layoutView{Lang: requestLanguage(r), View: data}
	if m, ok := security.ManagerFromContext(r.Context()); ok {
		v.Manager = m.Username
	}

	var buf bytes.Buffer
	if err := p[name].ExecuteTemplate(&buf, "layout", v); err != nil {
		zctx.From(r.Context()).Error("Render page", zap.String("page", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
