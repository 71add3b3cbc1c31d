package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator returns the shared validator with the config-specific tags registered.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Registration only fails for empty tags or nil functions.
		_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d > 0
		})
	})
	return validate
}

// validateStruct runs tag validation and flattens the result into one error
// per field, e.g. `identity.timeout: must be a positive duration`.
func validateStruct(c *Config) error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s: %s", fieldPath(fe.Namespace()), describe(fe)))
	}
	return errors.Join(errs...)
}

// fieldPath turns "Config.Identity.JWKS.URL" into "identity.jwks.url".
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		rest = namespace
	}
	return strings.ToLower(rest)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "duration":
		return fmt.Sprintf("must be a positive duration, got %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
