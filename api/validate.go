package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/condo-engine/generic"
)

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

// newValidator builds the validator used for every request body. Errors name
// fields by their JSON tag, and decimals are compared as float64 so numeric
// tags (gt, gte) apply to amounts.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// decodeJSON reads the body into dst and validates it. An empty body decodes
// as the zero value, so optional bodies need no special casing. Every
// failure comes back as an InvalidParameterError.
func (h *Handler) decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return generic.Invalid("body", "", err.Error())
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(s any) error {
	err := h.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return generic.Invalid("body", "", err.Error())
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		// Namespace is "Request.items[0].amount"; drop the struct name.
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		errs = append(errs, generic.Invalid(field, "", validationMessage(fe)))
	}
	return errors.Join(errs...)
}

// validationMessage returns a human-readable validation message.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "is invalid"
	}
}
