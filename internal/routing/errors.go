package routing

import "github.com/fixrouter/gateway/pkg/errors"

const (
	CodeConfigInvalid = "ROUTING_CONFIG_INVALID"
	CodeRouteNotFound = "ROUTING_ROUTE_NOT_FOUND"
)

// ErrConfigInvalid is a ConfigurationError per §7: fatal at startup.
func ErrConfigInvalid(msg string, cause error) *errors.AppError {
	return errors.New(CodeConfigInvalid, "invalid routing configuration: "+msg, cause)
}

func ErrRouteNotFound(routeID string) *errors.AppError {
	return errors.NotFound("no route with id "+routeID, nil)
}
