// Package exprlang implements the small embedded expression language the
// routing engine uses for content-based partitioning: literals, identifier
// and member access, arithmetic/comparison operators, string concatenation
// via +, the ternary operator, and an if/else statement form that returns a
// value. Expressions compile to an AST and are cached by source string so a
// given expression is compiled at most once per process.
package exprlang

import (
	"fmt"
	"sync"
)

// Compiled is an opaque compiled expression, safe for concurrent Eval calls.
type Compiled struct {
	src  string
	root node
}

type cacheEntry struct {
	once   sync.Once
	result *Compiled
	err    error
}

// Cache is a thread-safe compile-on-miss-and-cache store keyed by source
// string, as required by P9: compile(s) runs at most once regardless of how
// many goroutines call Compile concurrently for the same s.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// Compile returns the cached compiled expression for src, compiling it on
// first request.
func (c *Cache) Compile(src string) (*Compiled, error) {
	c.mu.Lock()
	entry, ok := c.entries[src]
	if !ok {
		entry = &cacheEntry{}
		c.entries[src] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		root, err := parse(src)
		if err != nil {
			entry.err = fmt.Errorf("compile expression %q: %w", src, err)
			return
		}
		entry.result = &Compiled{src: src, root: root}
	})
	return entry.result, entry.err
}

// PreCompile populates the cache for src at startup so the first message
// that needs it takes no compile latency.
func (c *Cache) PreCompile(src string) error {
	_, err := c.Compile(src)
	return err
}

// Binding supplies the names in scope while evaluating an expression: every
// envelope field by its JSON name, the whole envelope object, every
// (tag, value) pair by its symbolic or Tag<N> name, and parsedTags.
type Binding interface {
	Lookup(name string) (any, bool)
}

// Eval executes c against binding and returns the raw result value (string,
// int64, float64, bool, or nil). A nil AST (from a failed compile) or a
// runtime type error is a fatal EvaluationError for that evaluation.
func Eval(c *Compiled, binding Binding) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("evaluate nil compiled expression")
	}
	return evalNode(c.root, binding)
}

func evalNode(n node, b Binding) (any, error) {
	switch t := n.(type) {
	case *literalNode:
		return t.value, nil
	case *identNode:
		v, ok := b.Lookup(t.name)
		if !ok {
			return nil, fmt.Errorf("unbound identifier %q", t.name)
		}
		return v, nil
	case *memberNode:
		target, err := evalNode(t.target, b)
		if err != nil {
			return nil, err
		}
		return memberAccess(target, t.name)
	case *unaryNode:
		return evalUnary(t, b)
	case *binaryNode:
		return evalBinary(t, b)
	case *ternaryNode:
		cond, err := evalNode(t.cond, b)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return evalNode(t.whenTrue, b)
		}
		return evalNode(t.whenFalse, b)
	case *ifElseNode:
		cond, err := evalNode(t.cond, b)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return evalNode(t.thenExpr, b)
		}
		return evalNode(t.elseExpr, b)
	default:
		return nil, fmt.Errorf("unhandled ast node %T", n)
	}
}

func memberAccess(target any, name string) (any, error) {
	switch m := target.(type) {
	case map[string]any:
		v, ok := m[name]
		if !ok {
			return nil, fmt.Errorf("no such member %q", name)
		}
		return v, nil
	case Binding:
		v, ok := m.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("no such member %q", name)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("cannot access member %q of %T", name, target)
	}
}

func evalUnary(t *unaryNode, b Binding) (any, error) {
	v, err := evalNode(t.operand, b)
	if err != nil {
		return nil, err
	}
	switch t.op {
	case tokBang:
		return !truthy(v), nil
	case tokMinus:
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		default:
			return nil, fmt.Errorf("cannot negate non-numeric value %v", v)
		}
	default:
		return nil, fmt.Errorf("unknown unary operator")
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
