package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/availability-api/internal/model"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validationMessages = map[string]string{
	"required":  "is required",
	"civildate": "must be a date in YYYY-MM-DD form",
	"timeofday": "must be a time in HH:MM form",
}

var registerOnce sync.Once

// RegisterValidators installs the domain validators on gin's binding
// engine and reports fields by their json or form name.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("unexpected binding validator engine")
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})

		if err = v.RegisterValidation("civildate", func(fl validator.FieldLevel) bool {
			_, perr := model.ParseDate(fl.Field().String())
			return perr == nil
		}); err != nil {
			return
		}
		err = v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
			_, perr := model.ParseTimeOfDay(fl.Field().String())
			return perr == nil
		})
	})
	return err
}

// ValidationErrors flattens a binding error into per-field messages.
func ValidationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, e := range verrs {
		msg, ok := validationMessages[e.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed the %q check", e.Tag())
		}
		out = append(out, ValidationError{Field: e.Field(), Message: msg})
	}
	return out
}

// DescribeBindError renders a binding error as a single client message.
func DescribeBindError(err error) string {
	fields := ValidationErrors(err)
	if len(fields) == 0 {
		return "invalid request: " + err.Error()
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Field + " " + f.Message
	}
	return "invalid request: " + strings.Join(parts, "; ")
}
