/*
Package validator provides input validation with custom validation rules.

This package wraps go-playground/validator with the custom validations the
routing configuration model needs:
  - fix_session_id: "FIX.<v>:<sender>-><target>" session id format
  - destination_uri: scheme-prefixed destination URI (netty:tcp://, kafka:,
    direct:, ws:, amqp:)

Usage:

	import "github.com/fixrouter/gateway/pkg/validator"

	v := validator.New()

	// Validate struct
	err := v.ValidateStruct(myStruct)

	// Validate single value
	err := v.ValidateVar(sessionID, "fix_session_id")
*/
package validator
