package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Common regex patterns for routing-configuration fields.
var (
	sessionIDRegex     = regexp.MustCompile(`^FIX\.\d\.\d:[^->]+->[^->]+$`)
	destinationURIRegex = regexp.MustCompile(`^(netty:tcp|kafka|direct|ws|amqp):.+$`)
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	_ = v.RegisterValidation("fix_session_id", validateSessionID)
	_ = v.RegisterValidation("destination_uri", validateDestinationURI)

	return &Validator{validate: v}
}

// ValidateStruct validates a struct using its `validate` tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// ValidateVar validates a single variable against a tag.
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	return v.validate.Var(field, tag)
}

// validateSessionID checks the "FIX.<v>:<sender>-><target>" form from spec §3.
func validateSessionID(fl validator.FieldLevel) bool {
	return sessionIDRegex.MatchString(fl.Field().String())
}

// validateDestinationURI checks the scheme-prefixed destination URI forms
// from spec §3/§6: netty:tcp://, kafka:, direct:, ws:, amqp:.
func validateDestinationURI(fl validator.FieldLevel) bool {
	return destinationURIRegex.MatchString(fl.Field().String())
}
