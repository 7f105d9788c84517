// Package validation checks request structs against their `validate` tags and
// turns the first failure into a readable message.
package validation

import (
	"errors"
	"reflect"
	"strings"

	val "github.com/go-playground/validator/v10"
)

var validate = newValidate()

var messages = map[string]string{
	"required": "{field} is required",
	"max":      "{field} must be at most {param} characters",
	"min":      "{field} must be at least {param} characters",
	"oneof":    "{field} must be one of {param}",
	"datetime": "{field} must match the format {param}",
	"alphanum": "{field} must contain only letters and digits",
	"gte":      "{field} must be greater than or equal to {param}",
}

func newValidate() *val.Validate {
	v := val.New(val.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates data and returns a descriptive error, or nil.
func Struct(data any) error {
	if err := validate.Struct(data); err != nil {
		return errors.New(message(err))
	}
	return nil
}

func message(err error) string {
	var valErrors val.ValidationErrors
	if errors.As(err, &valErrors) {
		for _, valErr := range valErrors {
			msg := messages[valErr.Tag()]
			if msg == "" {
				continue
			}
			msg = strings.ReplaceAll(msg, "{field}", valErr.Field())
			msg = strings.ReplaceAll(msg, "{param}", valErr.Param())
			return msg
		}
		return valErrors.Error()
	}
	return err.Error()
}
