package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// wirePage mirrors the search response body. Pointers distinguish a missing
// field from its zero value so that "id": 0 is accepted but a missing id is not.
type wirePage struct {
	TotalCount        int        `json:"total_count"`
	IncompleteResults bool       `json:"incomplete_results"`
	Items             []wireItem `json:"items" validate:"required,dive"`
}

type wireItem struct {
	ID        *int64  `json:"id" validate:"required"`
	Login     *string `json:"login" validate:"required"`
	AvatarURL *string `json:"avatar_url"`
	HTMLURL   *string `json:"html_url"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode turns a search response body into a Page. It fails with a
// *DecodeError when the body is not JSON, has no items collection, or any
// item lacks a numeric id or a login. A failing item fails the whole page.
func Decode(body []byte) (Page, error) {
	var wire wirePage
	if err := json.Unmarshal(body, &wire); err != nil {
		return Page{}, &DecodeError{Message: "invalid JSON body", Cause: err}
	}

	if err := validate.Struct(wire); err != nil {
		return Page{}, &DecodeError{Message: describeValidation(err), Cause: err}
	}

	page := Page{
		Items:             make([]Item, 0, len(wire.Items)),
		TotalCount:        wire.TotalCount,
		IncompleteResults: wire.IncompleteResults,
	}
	for _, w := range wire.Items {
		page.Items = append(page.Items, Item{
			ID:        *w.ID,
			Name:      *w.Login,
			AvatarURL: deref(w.AvatarURL),
			HTMLURL:   deref(w.HTMLURL),
		})
	}

	return page, nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "validation failed"
	}
	first := fieldErrs[0]
	field := strings.TrimPrefix(first.Namespace(), "wirePage.")
	if first.Tag() == "required" {
		return fmt.Sprintf("%s is required", field)
	}
	return fmt.Sprintf("%s failed %q", field, first.Tag())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
