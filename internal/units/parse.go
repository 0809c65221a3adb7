package units

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var superscripts = map[rune]rune{
	'⁰': '0', '¹': '1', '²': '2', '³': '3', '⁴': '4',
	'⁵': '5', '⁶': '6', '⁷': '7', '⁸': '8', '⁹': '9', '⁻': '-',
}

// Parse parses a unit expression such as "mmol m^-3", "m/yr", "(m/s)^2" or
// "d⁻¹". Terms are separated by '*', '·', '/' or whitespace; division binds
// to the single term that follows it. The empty string, "1", "unitless" and
// "NoUnits" are dimensionless.
func Parse(expr string) (Unit, error) {
	s := strings.TrimSpace(expr)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	s = strings.TrimSpace(s)
	if s == "" {
		return One, nil
	}
	p := &parser{src: []rune(s), expr: expr}
	u, err := p.expr1()
	if err != nil {
		return Unit{}, err
	}
	p.skipSpace()
	if !p.eof() {
		return Unit{}, fmt.Errorf("%w: unexpected %q at %d in %q", ErrSyntax, p.peek(), p.pos, expr)
	}
	u.Symbol = s
	return u, nil
}

type parser struct {
	src  []rune
	pos  int
	expr string
}

func (p *parser) eof() bool  { return p.pos >= len(p.src) }
func (p *parser) peek() rune { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.pos++
	}
}

func (p *parser) expr1() (Unit, error) {
	u, err := p.term()
	if err != nil {
		return Unit{}, err
	}
	for {
		p.skipSpace()
		if p.eof() || p.peek() == ')' {
			return u, nil
		}
		switch p.peek() {
		case '*', '·', '⋅':
			p.pos++
			if !p.eof() && p.peek() == '*' {
				return Unit{}, fmt.Errorf("%w: dangling '**' in %q", ErrSyntax, p.expr)
			}
			v, err := p.term()
			if err != nil {
				return Unit{}, err
			}
			u = u.Mul(v)
		case '/':
			p.pos++
			v, err := p.term()
			if err != nil {
				return Unit{}, err
			}
			u = u.Div(v)
		default:
			v, err := p.term()
			if err != nil {
				return Unit{}, err
			}
			u = u.Mul(v)
		}
	}
}

func (p *parser) term() (Unit, error) {
	p.skipSpace()
	if p.eof() {
		return Unit{}, fmt.Errorf("%w: missing term in %q", ErrSyntax, p.expr)
	}
	var (
		u        Unit
		isSymbol bool
	)
	switch r := p.peek(); {
	case r == '(':
		p.pos++
		inner, err := p.expr1()
		if err != nil {
			return Unit{}, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ')' {
			return Unit{}, fmt.Errorf("%w: unbalanced parenthesis in %q", ErrSyntax, p.expr)
		}
		p.pos++
		u = inner
	case unicode.IsDigit(r) || r == '.':
		n, err := p.number()
		if err != nil {
			return Unit{}, err
		}
		u = Unit{Scale: n, Dims: One.dims()}
	default:
		sym := p.symbol()
		if sym == "" {
			return Unit{}, fmt.Errorf("%w: unexpected %q in %q", ErrSyntax, r, p.expr)
		}
		found, ok := lookup(sym)
		if !ok {
			return Unit{}, &UnknownUnitError{Symbol: sym, Expr: p.expr}
		}
		u = found
		isSymbol = true
	}
	n, ok, err := p.exponent(isSymbol)
	if err != nil {
		return Unit{}, err
	}
	if ok {
		u = u.Pow(n)
	}
	return u, nil
}

func (p *parser) symbol() string {
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if unicode.IsLetter(r) || r == '%' || r == '‰' || r == '_' {
			p.pos++
			continue
		}
		break
	}
	return string(p.src[start:p.pos])
}

func (p *parser) number() (float64, error) {
	start := p.pos
	for !p.eof() && (unicode.IsDigit(p.peek()) || p.peek() == '.') {
		p.pos++
	}
	if !p.eof() && (p.peek() == 'e' || p.peek() == 'E') {
		save := p.pos
		p.pos++
		if !p.eof() && (p.peek() == '+' || p.peek() == '-') {
			p.pos++
		}
		if p.eof() || !unicode.IsDigit(p.peek()) {
			p.pos = save
		} else {
			for !p.eof() && unicode.IsDigit(p.peek()) {
				p.pos++
			}
		}
	}
	text := string(p.src[start:p.pos])
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q in %q", ErrSyntax, text, p.expr)
	}
	return v, nil
}

// exponent reads "^n", "**n", "^(n)", superscripts, or, directly after a
// symbol, a bare signed integer as in "m-3" or "m2".
func (p *parser) exponent(afterSymbol bool) (int, bool, error) {
	if p.eof() {
		return 0, false, nil
	}
	switch r := p.peek(); {
	case r == '^':
		p.pos++
		return p.signedInt(true)
	case r == '*' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
		p.pos += 2
		return p.signedInt(true)
	case superscripts[r] != 0:
		var b strings.Builder
		for !p.eof() && superscripts[p.peek()] != 0 {
			b.WriteRune(superscripts[p.peek()])
			p.pos++
		}
		n, err := strconv.Atoi(b.String())
		if err != nil {
			return 0, false, fmt.Errorf("%w: bad superscript exponent in %q", ErrSyntax, p.expr)
		}
		return n, true, nil
	case afterSymbol && (unicode.IsDigit(r) || (r == '-' && p.pos+1 < len(p.src) && unicode.IsDigit(p.src[p.pos+1]))):
		return p.signedInt(false)
	}
	return 0, false, nil
}

func (p *parser) signedInt(allowParens bool) (int, bool, error) {
	p.skipSpace()
	paren := false
	if allowParens && !p.eof() && p.peek() == '(' {
		paren = true
		p.pos++
		p.skipSpace()
	}
	start := p.pos
	if !p.eof() && (p.peek() == '-' || p.peek() == '+') {
		p.pos++
	}
	for !p.eof() && unicode.IsDigit(p.peek()) {
		p.pos++
	}
	n, err := strconv.Atoi(string(p.src[start:p.pos]))
	if err != nil {
		return 0, false, fmt.Errorf("%w: bad exponent in %q", ErrSyntax, p.expr)
	}
	if paren {
		p.skipSpace()
		if p.eof() || p.peek() != ')' {
			return 0, false, fmt.Errorf("%w: unbalanced exponent parenthesis in %q", ErrSyntax, p.expr)
		}
		p.pos++
	}
	return n, true, nil
}
