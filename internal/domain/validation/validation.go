// Package validation wraps a shared validator instance so every domain input
// reports problems by its JSON field name.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Problems lists the fields that failed validation, split by kind.
type Problems struct {
	Missing []string // failed a "required" rule
	Invalid []string // present but malformed or out of range
}

// OK reports whether no problems were found.
func (p Problems) OK() bool {
	return len(p.Missing) == 0 && len(p.Invalid) == 0
}

// Check validates s against its `validate` struct tags.
// PRE: s is a struct or pointer to struct
// POST: returns the problems found; err is non-nil only for programmer errors
func Check(s any) (Problems, error) {
	var p Problems
	err := validate.Struct(s)
	if err == nil {
		return p, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return p, err
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			p.Missing = append(p.Missing, fe.Field())
		} else {
			p.Invalid = append(p.Invalid, fe.Field())
		}
	}
	return p, nil
}

// IsEmail reports whether s is a syntactically valid email address.
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}
