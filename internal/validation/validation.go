// Package validation holds the field rules shared by the registration form
// and the store endpoint.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	studentIDRe = regexp.MustCompile(`^\d{9}$`)
	// optional +88/88 country code, then the 11-digit local mobile form
	phoneRe = regexp.MustCompile(`^(?:\+88|88)?(01[3-9]\d{8})$`)
)

const (
	MsgRequired     = "This field is required"
	MsgInvalidID    = "Invalid student ID format"
	MsgInvalidPhone = "Invalid phone number"
	MsgInvalidValue = "Invalid value"
	MsgBatchWarning = "Registration is exclusive to Batch 231"
	MsgDeptWarning  = "Only CSE department students allowed"
)

func ValidStudentID(s string) bool { return studentIDRe.MatchString(s) }

func ValidPhone(s string) bool { return phoneRe.MatchString(s) }

// New returns a validator with the "studentid" and "bdphone" tags registered.
// Field names in errors are the JSON names of the struct fields.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("studentid", func(fl validator.FieldLevel) bool {
		return ValidStudentID(fl.Field().String())
	})
	_ = v.RegisterValidation("bdphone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	return v
}

// Message turns a failed tag into the user-facing text.
func Message(tag string) string {
	switch tag {
	case "required":
		return MsgRequired
	case "studentid":
		return MsgInvalidID
	case "bdphone":
		return MsgInvalidPhone
	default:
		return MsgInvalidValue
	}
}

// FieldMessages flattens validator errors into field -> message.
// Errors that are not validation errors are returned unchanged.
func FieldMessages(err error) (map[string]string, error) {
	out := map[string]string{}
	if err == nil {
		return out, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	for _, fe := range verrs {
		out[fe.Field()] = Message(fe.Tag())
	}
	return out, nil
}
