package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	registerCustomValidations()
}

// Fields validates a struct using validation tags and returns the failures
// keyed by json path, e.g. "volunteers.add[0].name". It returns nil when the
// struct is valid.
func Fields(s interface{}) map[string][]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string][]string{"": {err.Error()}}
	}

	fields := make(map[string][]string, len(validationErrors))
	for _, fe := range validationErrors {
		path := fieldPath(fe.Namespace())
		fields[path] = append(fields[path], message(fe))
	}
	return fields
}

// Var validates a single value against a tag
func Var(value interface{}, tag string) error {
	return validate.Var(value, tag)
}

// fieldPath drops the root struct name from a namespace
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required", "required_without", "required_with":
		return "is required"
	case "not_blank":
		return "must not be blank"
	case "min", "gte":
		if isString {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		if isString {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "uuid":
		return "must be a valid UUID"
	case "len":
		return fmt.Sprintf("must have length %s", fe.Param())
	default:
		return "is invalid"
	}
}

func registerCustomValidations() {
	validate.RegisterValidation("not_blank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}
