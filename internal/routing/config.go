package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fixrouter/gateway/internal/exprlang"
	"github.com/fixrouter/gateway/pkg/logger"
	"github.com/fixrouter/gateway/pkg/validator"
)

// structValidator runs the `validate` struct tags on Route/DestinationConfig
// (required fields, the INPUT/OUTPUT enum, and the destination_uri scheme
// check), alongside the hand-written checks in validateRoute below that need
// cross-field context the tags alone can't express.
var structValidator = validator.New()

// EnvConfigPathVar is the environment variable §6 names as the second
// priority source for the routing config document path.
const EnvConfigPathVar = "FIX_ROUTING_CONFIG_PATH"

// DefaultResourcePath is the packaged default resource, lowest-priority
// source per §6's load order.
const DefaultResourcePath = "routing-config.json"

// Defaults holds the global error-handling defaults and default
// destination template applied to every route/destination that doesn't
// override them.
type Defaults struct {
	DefaultMaxRedeliveries int           `json:"defaultMaxRedeliveries"`
	DefaultRedeliveryDelay time.Duration `json:"-"`
	DefaultDeadLetterTopic string        `json:"defaultDeadLetterTopic"`
}

func defaultDefaults() Defaults {
	return Defaults{
		DefaultMaxRedeliveries: 1,
		DefaultRedeliveryDelay: 500 * time.Millisecond,
		DefaultDeadLetterTopic: "fix-dead-letter",
	}
}

// document is the on-disk JSON shape.
type document struct {
	Routes   []Route  `json:"routes"`
	Defaults *rawDefaults `json:"defaults,omitempty"`
}

type rawDefaults struct {
	DefaultMaxRedeliveries int    `json:"defaultMaxRedeliveries"`
	DefaultRedeliveryDelayMs int  `json:"defaultRedeliveryDelay"`
	DefaultDeadLetterTopic string `json:"defaultDeadLetterTopic"`
}

// Config is the loaded, validated routing table: immutable after Load.
type Config struct {
	Routes   []Route
	Defaults Defaults

	exprCache *exprlang.Cache
	compiled  map[string]*exprlang.Compiled
}

// ExprCache returns the process-wide expression cache populated during Load.
func (c *Config) ExprCache() *exprlang.Cache { return c.exprCache }

// ResolvePath implements §6's load-order: explicit path argument, then
// FIX_ROUTING_CONFIG_PATH, then the packaged default resource.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(EnvConfigPathVar); v != "" {
		return v
	}
	return DefaultResourcePath
}

// Load reads and validates the routing configuration document at path. Each
// route is validated (non-empty routeId, non-empty destinations for INPUT
// routes, consistent direction/topic); every partitionExpression is
// pre-compiled into exprCache. A partitionExpression compile failure is
// logged but not fatal, per §4.4.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrConfigInvalid("cannot read routing config file "+path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ErrConfigInvalid("malformed routing config JSON", err)
	}

	cfg := &Config{
		Defaults:  defaultDefaults(),
		exprCache: exprlang.NewCache(),
		compiled:  make(map[string]*exprlang.Compiled),
	}
	if doc.Defaults != nil {
		if doc.Defaults.DefaultMaxRedeliveries > 0 {
			cfg.Defaults.DefaultMaxRedeliveries = doc.Defaults.DefaultMaxRedeliveries
		}
		if doc.Defaults.DefaultRedeliveryDelayMs > 0 {
			cfg.Defaults.DefaultRedeliveryDelay = time.Duration(doc.Defaults.DefaultRedeliveryDelayMs) * time.Millisecond
		}
		if doc.Defaults.DefaultDeadLetterTopic != "" {
			cfg.Defaults.DefaultDeadLetterTopic = doc.Defaults.DefaultDeadLetterTopic
		}
	}

	seen := make(map[string]bool)
	for i := range doc.Routes {
		route := &doc.Routes[i]
		if err := validateRoute(route); err != nil {
			return nil, err
		}
		if seen[route.RouteID] {
			return nil, ErrConfigInvalid(fmt.Sprintf("duplicate routeId %q", route.RouteID), nil)
		}
		seen[route.RouteID] = true

		applyAutoDerivation(route)
		applyDestinationDefaults(route, cfg.Defaults)

		if route.PartitionExpr != "" {
			if _, err := cfg.exprCache.Compile(route.PartitionExpr); err != nil {
				logger.L().Error("partition expression compile failed, route will fall back to no key",
					"routeId", route.RouteID, "expression", route.PartitionExpr, "error", err)
			}
		}
	}
	cfg.Routes = doc.Routes

	return cfg, nil
}

func validateRoute(r *Route) error {
	if r.RouteID == "" {
		return ErrConfigInvalid("route missing routeId", nil)
	}
	if r.Direction != DirectionInput && r.Direction != DirectionOutput {
		return ErrConfigInvalid(fmt.Sprintf("route %q has invalid direction %q", r.RouteID, r.Direction), nil)
	}
	if err := structValidator.ValidateStruct(r); err != nil {
		return ErrConfigInvalid(fmt.Sprintf("route %q failed field validation", r.RouteID), err)
	}
	if r.Direction == DirectionInput && len(r.DestinationConfigs) == 0 {
		return ErrConfigInvalid(fmt.Sprintf("INPUT route %q has no destinations", r.RouteID), nil)
	}
	if r.Direction == DirectionOutput && r.OutputTopic == "" && r.SenderCompID == "" {
		return ErrConfigInvalid(fmt.Sprintf("OUTPUT route %q has neither outputTopic nor senderCompId to derive one", r.RouteID), nil)
	}
	return nil
}

// applyAutoDerivation fills inputTopic/outputTopic per §4.4: any unset topic
// becomes "fix.<sender>.<target>.<direction>".
func applyAutoDerivation(r *Route) {
	if r.Direction == DirectionInput && r.InputTopic == "" {
		r.InputTopic = fmt.Sprintf("fix.%s.%s.input", r.SenderCompID, r.TargetCompID)
	}
	if r.Direction == DirectionOutput && r.OutputTopic == "" {
		r.OutputTopic = fmt.Sprintf("fix.%s.%s.output", r.SenderCompID, r.TargetCompID)
	}
}

// applyDestinationDefaults fills per-destination defaults and the
// netty-specific timeout auto-derivation of §4.4.
func applyDestinationDefaults(r *Route, defaults Defaults) {
	for i := range r.DestinationConfigs {
		d := &r.DestinationConfigs[i]
		if d.MaxRetries == 0 {
			d.MaxRetries = 3
		}
		if d.RetryDelayMs == 0 {
			d.RetryDelayMs = 1000
		}
		d.RetryDelay = time.Duration(d.RetryDelayMs) * time.Millisecond

		if isNettyURI(d.URI) {
			if d.TimeoutMs == 0 {
				d.TimeoutMs = 10000
			}
			if d.ConnectTimeoutMs == 0 {
				d.ConnectTimeoutMs = 5000
			}
			if d.RequestTimeoutMs == 0 {
				d.RequestTimeoutMs = 5000
			}
		}
		if d.TimeoutMs == 0 {
			d.TimeoutMs = 5000
		}
		d.Timeout = time.Duration(d.TimeoutMs) * time.Millisecond

		if d.DeadLetterTopic == "" {
			d.DeadLetterTopic = fmt.Sprintf("dead-letter-%s-%s", r.RouteID, endpointSlug(d.URI))
		}
	}

	if r.MaxRedeliveries == 0 {
		r.MaxRedeliveries = defaults.DefaultMaxRedeliveries
	}
	if r.RedeliveryDelayMs == 0 {
		r.RedeliveryDelay = defaults.DefaultRedeliveryDelay
	} else {
		r.RedeliveryDelay = time.Duration(r.RedeliveryDelayMs) * time.Millisecond
	}
	if r.DeadLetterTopic == "" {
		r.DeadLetterTopic = defaults.DefaultDeadLetterTopic
	}
}

func isNettyURI(uri string) bool {
	return len(uri) >= 6 && uri[:6] == "netty:"
}

// endpointSlug derives a filesystem/topic-safe token from a destination URI
// for the default dead-letter topic name.
func endpointSlug(uri string) string {
	out := make([]rune, 0, len(uri))
	for _, c := range uri {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		default:
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	s := string(out)
	for len(s) > 0 && s[len(s)-1] == '-' {
		s = s[:len(s)-1]
	}
	return s
}

// RouteByID finds a route by its id, used for the preferred (non-legacy)
// destination resolution path.
func (c *Config) RouteByID(routeID string) (*Route, bool) {
	for i := range c.Routes {
		if c.Routes[i].RouteID == routeID {
			return &c.Routes[i], true
		}
	}
	return nil, false
}

// RoutesByDirection filters the route table by direction.
func (c *Config) RoutesByDirection(dir Direction) []*Route {
	var out []*Route
	for i := range c.Routes {
		if c.Routes[i].Direction == dir {
			out = append(out, &c.Routes[i])
		}
	}
	return out
}

// RouteBySenderTarget implements the legacy sender/target fall-back from
// §4.6 point 4 and §9's open question: retained only for backwards
// compatibility, and callers should log whenever they take this path
// instead of the preferred routeId lookup.
func (c *Config) RouteBySenderTarget(sender, target string, dir Direction) (*Route, bool) {
	for i := range c.Routes {
		r := &c.Routes[i]
		if r.Direction == dir && r.SenderCompID == sender && r.TargetCompID == target {
			return r, true
		}
	}
	return nil, false
}
