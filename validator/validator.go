package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sixpeteunder/orientdb-odm/fetchplan"
	"github.com/sixpeteunder/orientdb-odm/models"
)

// Validator wraps the go-playground validator
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

var classNamePattern = regexp.MustCompile(`^[A-Za-z_][\w]*(\.[A-Za-z_][\w]*)*$`)

// New creates a new validator instance
func New() *Validator {
	v := validator.New()

	// Register custom tag name function to use JSON tags
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Register custom validators
	v.RegisterValidation("rid", validateRID)
	v.RegisterValidation("classname", validateClassName)
	v.RegisterValidation("fetchplan", validateFetchPlan)
	v.RegisterValidation("adapter", validateAdapter)

	return &Validator{validate: v}
}

// Validate validates a struct and returns validation errors
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	// Convert validation errors to our custom format
	var validationErrs ValidationErrors
	for _, fe := range fieldErrs {
		validationErrs = append(validationErrs, toValidationError(fe.Field(), fe))
	}
	return validationErrs
}

// ValidateField checks a single value against a tag string such as
// "required,min=2". name is only used in messages.
func (v *Validator) ValidateField(name string, value any, tag string) error {
	if tag == "" {
		return nil
	}
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("field %s: %w", name, err)
	}
	var validationErrs ValidationErrors
	for _, fe := range fieldErrs {
		validationErrs = append(validationErrs, toValidationError(name, fe))
	}
	return validationErrs
}

// ValidateDocument applies the Validate rule of every declared field of meta
// to values. Fields are checked in declaration order and all failures are
// reported together.
func (v *Validator) ValidateDocument(meta *models.ClassMetadata, values map[string]any) error {
	var all ValidationErrors
	for _, fd := range meta.Fields {
		if fd.Validate == "" {
			continue
		}
		err := v.ValidateField(fd.Name, values[fd.Name], fd.Validate)
		if err == nil {
			continue
		}
		if errs, ok := err.(ValidationErrors); ok {
			all = append(all, errs...)
			continue
		}
		return err
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

func toValidationError(field string, fe validator.FieldError) ValidationError {
	return ValidationError{
		Field:   field,
		Message: msgForTag(field, fe),
		Tag:     fe.Tag(),
		Value:   fmt.Sprintf("%v", fe.Value()),
	}
}

// msgForTag returns a human-readable error message for a validation tag
func msgForTag(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "rid":
		return fmt.Sprintf("%s must be a record id like #13:0", field)
	case "classname":
		return fmt.Sprintf("%s must be a class name (letters, digits and _, optionally dot separated)", field)
	case "fetchplan":
		return fmt.Sprintf("%s must be a fetch plan like *:-1 or city:1", field)
	case "adapter":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(adapterNames(), ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "hostname|ip":
		return fmt.Sprintf("%s must be a host name or IP address", field)
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// Custom validators

// validateRID accepts #c:p and c:p forms
func validateRID(fl validator.FieldLevel) bool {
	_, err := models.ParseRID(fl.Field().String())
	return err == nil
}

func validateClassName(fl validator.FieldLevel) bool {
	return classNamePattern.MatchString(fl.Field().String())
}

// validateFetchPlan accepts an empty plan as the default one
func validateFetchPlan(fl validator.FieldLevel) bool {
	_, err := fetchplan.Parse(fl.Field().String())
	return err == nil
}

var adapters = map[string]bool{
	"http":     true,
	"embedded": true,
}

func validateAdapter(fl validator.FieldLevel) bool {
	return adapters[fl.Field().String()]
}

func adapterNames() []string {
	names := make([]string, 0, len(adapters))
	for n := range adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
