// Package validation wraps go-playground/validator with a shared instance and
// human-readable messages keyed by JSON field name.
//
//	type registerRequest struct {
//	    Username string `json:"username" validate:"required,min=3"`
//	}
//
//	if violations := validation.Check(&req); violations != nil {
//	    return apperr.ValidationFailed(violations)
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		validate.RegisterAlias("rating", "gte=1,lte=10")
		_ = validate.RegisterValidation("movieyear", validateMovieYear)
		_ = validate.RegisterValidation("bcryptlen", validateBcryptLength)
	})
	return validate
}

// Check validates s and returns field name -> message for every violation,
// or nil when s is valid.
func Check(s interface{}) map[string]string {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"request": err.Error()}
	}

	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = translateError(fe)
	}
	return out
}

var errorMessageTemplates = map[string]string{
	"required":  "%s is required",
	"email":     "%s must be a valid email address",
	"rating":    "%s must be between 1 and 10",
	"movieyear": "%s must be between 1800 and five years from now",
	"bcryptlen": "%s must be at most 72 bytes",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translateError(fe validator.FieldError) string {
	label := humanize(fe.StructField())
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, label)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, label, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", label, param)
		}
		return fmt.Sprintf("%s must be at least %s", label, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", label, param)
		}
		return fmt.Sprintf("%s must be at most %s", label, param)
	default:
		return fmt.Sprintf("%s failed %s validation", label, tag)
	}
}

func validateMovieYear(fl validator.FieldLevel) bool {
	year := fl.Field().Int()
	return year >= 1800 && year <= int64(time.Now().Year()+5)
}

// bcrypt rejects inputs longer than 72 bytes, which max= cannot see for
// multi-byte text since it counts runes.
func validateBcryptLength(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= maxBcryptBytes
}

const maxBcryptBytes = 72

// TypeMismatch returns the message for a JSON value that could not be decoded
// into field, e.g. "Rating must be a number".
func TypeMismatch(field reflect.StructField) string {
	t := field.Type
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var want string
	switch t.Kind() {
	case reflect.String:
		want = "a string"
	case reflect.Bool:
		want = "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		want = "a whole number"
	case reflect.Float32, reflect.Float64:
		want = "a number"
	case reflect.Slice, reflect.Array:
		want = "a list"
	default:
		want = "an object"
	}
	return fmt.Sprintf("%s must be %s", humanize(field.Name), want)
}

// FieldName returns the JSON name validation reports field under.
func FieldName(field reflect.StructField) string {
	return jsonFieldName(field)
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// humanize turns a Go field name into a label: MovieID -> "Movie ID".
func humanize(field string) string {
	var b strings.Builder
	runes := []rune(field)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
