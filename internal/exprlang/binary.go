package exprlang

import "fmt"

func evalBinary(t *binaryNode, b Binding) (any, error) {
	left, err := evalNode(t.left, b)
	if err != nil {
		return nil, err
	}
	right, err := evalNode(t.right, b)
	if err != nil {
		return nil, err
	}

	switch t.op {
	case tokEq:
		return equals(left, right), nil
	case tokNeq:
		return !equals(left, right), nil
	case tokPlus:
		return add(left, right)
	case tokMinus, tokStar, tokSlash, tokPercent:
		return arithmetic(t.op, left, right)
	case tokLt, tokLte, tokGt, tokGte:
		return compare(t.op, left, right)
	default:
		return nil, fmt.Errorf("unknown binary operator")
	}
}

func equals(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

// add implements + as numeric addition when both operands are numeric, and
// string concatenation otherwise (per spec §4.3, "string concatenation via +").
func add(a, b any) (any, error) {
	_, aIsStr := a.(string)
	_, bIsStr := b.(string)
	if aIsStr || bIsStr {
		return toDisplayString(a) + toDisplayString(b), nil
	}
	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		return ai + bi, nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af + bf, nil
	}
	return nil, fmt.Errorf("cannot add %T and %T", a, b)
}

func arithmetic(op tokenKind, a, b any) (any, error) {
	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		switch op {
		case tokMinus:
			return ai - bi, nil
		case tokStar:
			return ai * bi, nil
		case tokSlash:
			if bi == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return ai / bi, nil
		case tokPercent:
			if bi == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			return ai % bi, nil
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, fmt.Errorf("cannot apply arithmetic operator to %T and %T", a, b)
	}
	switch op {
	case tokMinus:
		return af - bf, nil
	case tokStar:
		return af * bf, nil
	case tokSlash:
		if bf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return af / bf, nil
	case tokPercent:
		return nil, fmt.Errorf("modulo requires integer operands")
	}
	return nil, fmt.Errorf("unknown arithmetic operator")
}

func compare(op tokenKind, a, b any) (any, error) {
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			switch op {
			case tokLt:
				return as < bs, nil
			case tokLte:
				return as <= bs, nil
			case tokGt:
				return as > bs, nil
			case tokGte:
				return as >= bs, nil
			}
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, fmt.Errorf("cannot compare %T and %T", a, b)
	}
	switch op {
	case tokLt:
		return af < bf, nil
	case tokLte:
		return af <= bf, nil
	case tokGt:
		return af > bf, nil
	case tokGte:
		return af >= bf, nil
	}
	return nil, fmt.Errorf("unknown comparison operator")
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func toDisplayString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
