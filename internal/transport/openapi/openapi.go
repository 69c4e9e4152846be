// Package openapi loads the API document and checks it against the router.
package openapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
)

type Document struct {
	doc *openapi3.T
	raw []byte
}

// Load parses and validates raw. A document that does not validate is
// rejected so a broken document never ships.
func Load(ctx context.Context, raw []byte) (*Document, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return &Document{doc: doc, raw: raw}, nil
}

// LoadFile prefers path when it exists and falls back to the embedded copy.
func LoadFile(ctx context.Context, path string, embedded []byte) (*Document, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			return Load(ctx, raw)
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read openapi document: %w", err)
		}
	}
	return Load(ctx, embedded)
}

func (d *Document) Title() string {
	return d.doc.Info.Title
}

// BasePath is the path of the first server entry, e.g. "/api/v1".
func (d *Document) BasePath() string {
	if len(d.doc.Servers) == 0 {
		return ""
	}
	return strings.TrimRight(d.doc.Servers[0].URL, "/")
}

// Operations lists "METHOD /path" for every documented operation, with the
// base path applied.
func (d *Document) Operations() []string {
	base := d.BasePath()
	var ops []string
	for path, item := range d.doc.Paths.Map() {
		for method := range item.Operations() {
			ops = append(ops, strings.ToUpper(method)+" "+base+path)
		}
	}
	sort.Strings(ops)
	return ops
}

// Undocumented walks router and returns every route under the base path that
// has no matching operation.
func (d *Document) Undocumented(router chi.Routes) ([]string, error) {
	documented := make(map[string]struct{})
	for _, op := range d.Operations() {
		documented[op] = struct{}{}
	}

	base := d.BasePath()
	var missing []string
	err := chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimSuffix(strings.ReplaceAll(route, "/*/", "/"), "/")
		if !strings.HasPrefix(route, base+"/") {
			return nil
		}
		key := method + " " + route
		if _, ok := documented[key]; !ok {
			missing = append(missing, key)
		}
		return nil
	})
	sort.Strings(missing)
	return missing, err
}

// Handler serves the raw document.
func (d *Document) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(d.raw)
	})
}
