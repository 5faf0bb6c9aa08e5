package promotion

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/money"
)

// Parse compiles a promotion expression of the form
//
//	WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 100, CHEAPEST)
func Parse(src string) (*Rule, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	rule, err := p.rule()
	if err != nil {
		return nil, err
	}
	return rule, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind, text string) (token, error) {
	t := p.next()
	if t.kind != kind || (text != "" && t.text != text) {
		want := text
		if want == "" {
			want = kindName(kind)
		}
		return t, p.errorf(t, "expected %s, found %s", want, t)
	}
	return t, nil
}

func (p *parser) rule() (*Rule, error) {
	if _, err := p.expect(tokIdent, "WHERE"); err != nil {
		return nil, err
	}
	cond, err := p.condition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokIdent, "THEN"); err != nil {
		return nil, err
	}
	action, err := p.action()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokEOF, ""); err != nil {
		return nil, err
	}
	return &Rule{Condition: cond, Action: action}, nil
}

func (p *parser) condition() (Condition, error) {
	first, err := p.comparison()
	if err != nil {
		return nil, err
	}
	conds := And{first}
	for p.peek().kind == tokIdent && p.peek().text == "AND" {
		p.next()
		c, err := p.comparison()
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	if len(conds) == 1 {
		return first, nil
	}
	return conds, nil
}

func (p *parser) comparison() (Condition, error) {
	metric, err := p.metric()
	if err != nil {
		return nil, err
	}
	opTok, err := p.expect(tokOp, "")
	if err != nil {
		return nil, err
	}
	value, err := p.number()
	if err != nil {
		return nil, err
	}
	return Comparison{Metric: metric, Op: Operator(opTok.text), Value: value}, nil
}

func (p *parser) metric() (Metric, error) {
	t := p.next()
	if t.kind != tokIdent {
		return nil, p.errorf(t, "expected COUNT or SUBTOTAL, found %s", t)
	}
	switch t.text {
	case "SUBTOTAL":
		return Subtotal{}, nil
	case "COUNT":
		if _, err := p.expect(tokLParen, ""); err != nil {
			return nil, err
		}
		var m Metric
		if p.peek().kind == tokStar {
			p.next()
			m = CountAll{}
		} else {
			if _, err := p.expect(tokIdent, "PRODUCT"); err != nil {
				return nil, err
			}
			if _, err := p.expect(tokOp, "="); err != nil {
				return nil, err
			}
			id, err := p.expect(tokString, "")
			if err != nil {
				return nil, err
			}
			m = CountProduct{ProductID: id.text}
		}
		if _, err := p.expect(tokRParen, ""); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, p.errorf(t, "unknown predicate %s", t)
}

func (p *parser) action() (Action, error) {
	var a Action
	if _, err := p.expect(tokIdent, "APPLY_DISCOUNT"); err != nil {
		return a, err
	}
	if _, err := p.expect(tokLParen, ""); err != nil {
		return a, err
	}
	kindTok, err := p.expect(tokIdent, "")
	if err != nil {
		return a, err
	}
	a.Kind = DiscountKind(kindTok.text)
	if a.Kind != DiscountPercentage && a.Kind != DiscountFixed {
		return a, p.errorf(kindTok, "unknown discount type %s", kindTok)
	}
	if _, err := p.expect(tokComma, ""); err != nil {
		return a, err
	}
	valueTok := p.peek()
	if a.Value, err = p.number(); err != nil {
		return a, err
	}
	if a.Kind == DiscountPercentage && !money.ValidPercent(a.Value) {
		return a, p.errorf(valueTok, "percentage must be within [0, 100]")
	}
	if _, err := p.expect(tokComma, ""); err != nil {
		return a, err
	}
	if a.Target, err = p.target(); err != nil {
		return a, err
	}
	if _, err := p.expect(tokRParen, ""); err != nil {
		return a, err
	}
	return a, nil
}

func (p *parser) target() (Target, error) {
	t, err := p.expect(tokIdent, "")
	if err != nil {
		return Target{}, err
	}
	switch TargetKind(t.text) {
	case TargetAll, TargetCheapest:
		return Target{Kind: TargetKind(t.text)}, nil
	case TargetFromNth:
		if _, err := p.expect(tokLParen, ""); err != nil {
			return Target{}, err
		}
		nTok := p.peek()
		n, err := p.number()
		if err != nil {
			return Target{}, err
		}
		if !n.IsInteger() || n.LessThan(decimal.NewFromInt(1)) {
			return Target{}, p.errorf(nTok, "FROM_NTH needs a positive whole number")
		}
		if n.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
			return Target{}, p.errorf(nTok, "FROM_NTH position %s is too large", n)
		}
		if _, err := p.expect(tokRParen, ""); err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetFromNth, N: int(n.IntPart())}, nil
	}
	return Target{}, p.errorf(t, "unknown target %s", t)
}

func (p *parser) number() (decimal.Decimal, error) {
	t, err := p.expect(tokNumber, "")
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(t.text)
	if err != nil || v.IsNegative() {
		return decimal.Zero, p.errorf(t, "invalid number %s", t)
	}
	return v, nil
}

func kindName(kind tokenKind) string {
	switch kind {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "keyword"
	case tokNumber:
		return "number"
	case tokString:
		return "quoted string"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokOp:
		return "comparison operator"
	}
	return "token"
}
