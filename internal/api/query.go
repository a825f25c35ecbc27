package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/BuzzLyutic/todo-client/internal/model"
)

var (
	validate      = validator.New()
	schemaEncoder = schema.NewEncoder()
)

// listParamOrder is the order parameters appear on the wire.
var listParamOrder = []string{"completed", "page", "order"}

// ListQuery renders params as a query string including the leading "?".
// Absent parameters and completed=all are omitted; with nothing left the
// result is empty, so ListQuery(ListParams{}) and
// ListQuery(ListParams{Completed: "all"}) are the same request.
func ListQuery(params model.ListParams) (string, error) {
	if err := validate.Struct(params); err != nil {
		return "", fmt.Errorf("invalid list params: %w", err)
	}
	if params.Completed == model.CompletedAll {
		params.Completed = ""
	}

	vals := url.Values{}
	if err := schemaEncoder.Encode(params, vals); err != nil {
		return "", fmt.Errorf("encode list params: %w", err)
	}

	parts := make([]string, 0, len(listParamOrder))
	for _, k := range listParamOrder {
		if v := vals.Get(k); v != "" {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "?" + strings.Join(parts, "&"), nil
}
