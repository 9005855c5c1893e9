// Package validate runs local form validation before any request is sent.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"unibro/pkg/apierr"
	"unibro/pkg/domain"
)

var v *validator.Validate

func init() {
	v = validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return PasswordPolicy(fl.Field().String()) == ""
	})
	_ = v.RegisterValidation("resourcetype", func(fl validator.FieldLevel) bool {
		return domain.ResourceType(fl.Field().String()).Valid()
	})
}

var messages = map[string]string{
	"required":     "%s is required",
	"email":        "%s must be a valid email address",
	"url":          "%s must be a valid URL",
	"min":          "%s must be at least %s characters long",
	"max":          "%s must be no longer than %s characters",
	"oneof":        "%s must be one of %s",
	"resourcetype": "%s must be a known resource type",
}

// Struct validates s and returns the first failure as a validation error.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apierr.Validation(err.Error())
	}
	return apierr.Validation(message(fieldErrs[0]))
}

func message(e validator.FieldError) string {
	if e.Tag() == "password" {
		return PasswordPolicy(fmt.Sprint(e.Value()))
	}
	tmpl, ok := messages[e.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid", e.Field())
	}
	if strings.Count(tmpl, "%s") == 2 {
		return fmt.Sprintf(tmpl, e.Field(), e.Param())
	}
	return fmt.Sprintf(tmpl, e.Field())
}

// PasswordPolicy returns "" for an acceptable password, else the reason.
func PasswordPolicy(pw string) string {
	if len(pw) < 8 {
		return "Password must be at least 8 characters long"
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	switch {
	case !upper:
		return "Password must contain an uppercase letter"
	case !lower:
		return "Password must contain a lowercase letter"
	case !digit:
		return "Password must contain a number"
	case !symbol:
		return "Password must contain a special character"
	}
	return ""
}
