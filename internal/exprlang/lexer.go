package exprlang

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokTrue
	tokFalse
	tokNull
	tokIf
	tokElse
	tokReturn
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokDot
	tokComma
	tokQuestion
	tokColon
	tokSemicolon
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokBang
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
)

type token struct {
	kind tokenKind
	text string
}

var keywords = map[string]tokenKind{
	"true":   tokTrue,
	"false":  tokFalse,
	"null":   tokNull,
	"if":     tokIf,
	"else":   tokElse,
	"return": tokReturn,
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '{':
			toks = append(toks, token{tokLBrace, "{"})
			i++
		case c == '}':
			toks = append(toks, token{tokRBrace, "}"})
			i++
		case c == '.':
			toks = append(toks, token{tokDot, "."})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '?':
			toks = append(toks, token{tokQuestion, "?"})
			i++
		case c == ':':
			toks = append(toks, token{tokColon, ":"})
			i++
		case c == ';':
			toks = append(toks, token{tokSemicolon, ";"})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+"})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-"})
			i++
		case c == '*':
			toks = append(toks, token{tokStar, "*"})
			i++
		case c == '/':
			toks = append(toks, token{tokSlash, "/"})
			i++
		case c == '%':
			toks = append(toks, token{tokPercent, "%"})
			i++
		case c == '!':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{tokNeq, "!="})
				i += 2
			} else {
				toks = append(toks, token{tokBang, "!"})
				i++
			}
		case c == '=':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{tokEq, "=="})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected '=' at position %d", i)
			}
		case c == '<':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{tokLte, "<="})
				i += 2
			} else {
				toks = append(toks, token{tokLt, "<"})
				i++
			}
		case c == '>':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{tokGte, ">="})
				i += 2
			} else {
				toks = append(toks, token{tokGt, ">"})
				i++
			}
		case c == '\'' || c == '"':
			s, newI, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokString, s})
			i = newI
		case isDigit(c):
			tok, newI := lexNumber(src, i)
			toks = append(toks, tok)
			i = newI
		case isIdentStart(c):
			newI := i
			for newI < n && isIdentPart(src[newI]) {
				newI++
			}
			word := src[i:newI]
			if kind, ok := keywords[word]; ok {
				toks = append(toks, token{kind, word})
			} else {
				toks = append(toks, token{tokIdent, word})
			}
			i = newI
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == quote {
			return b.String(), i + 1, nil
		}
		if src[i] == '\\' && i+1 < len(src) {
			b.WriteByte(src[i+1])
			i += 2
			continue
		}
		b.WriteByte(src[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string literal starting at position %d", start)
}

func lexNumber(src string, start int) (token, int) {
	i := start
	isFloat := false
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' && i+1 < len(src) && isDigit(src[i+1]) {
		isFloat = true
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if isFloat {
		return token{tokFloat, src[start:i]}, i
	}
	return token{tokInt, src[start:i]}, i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
