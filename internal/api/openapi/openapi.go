// Пакет openapi — встроенный OpenAPI-контракт filevault.
// Контракт загружается и валидируется при старте через kin-openapi
// и отдаётся клиентам в JSON на /api/v1/openapi.json.
package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec — загруженный контракт и его JSON-представление.
type Spec struct {
	doc  *openapi3.T
	json []byte
}

// Load разбирает встроенный контракт и проверяет его на соответствие OpenAPI 3.
func Load(ctx context.Context) (*Spec, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI контракта: %w", err)
	}

	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI контракта: %w", err)
	}
	return &Spec{doc: doc, json: data}, nil
}

// Doc возвращает разобранный контракт.
func (s *Spec) Doc() *openapi3.T {
	return s.doc
}

// Operations возвращает отсортированный список операций вида "GET /api/v1/files".
func (s *Spec) Operations() []string {
	var ops []string
	for path, item := range s.doc.Paths.Map() {
		for method := range item.Operations() {
			ops = append(ops, strings.ToUpper(method)+" "+path)
		}
	}
	sort.Strings(ops)
	return ops
}

// ServeHTTP отдаёт контракт в JSON.
func (s *Spec) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.json)
}
