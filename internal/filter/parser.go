package filter

import (
	"fmt"
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
)

// SyntaxError reports malformed filter text.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filter %q: %s at offset %d", e.Input, e.Msg, e.Pos)
}

// Parser is a recursive descent parser over the filter grammar:
//
//	expr    := or
//	or      := and (OR and)*
//	and     := not (AND not)*
//	not     := NOT not | primary
//	primary := "(" expr ")" | field op value | value
//
// A field prefixed with "i" (itag, imessage, ...) compares without regard
// to case.
type Parser struct {
	input   string
	lexer   *Lexer
	current Token
}

// Parse compiles text into a Node. Empty text yields a nil Node.
func Parse(text string) (Node, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	p := &Parser{input: text, lexer: NewLexer(text)}
	p.advance()
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorf("unexpected %s", p.current.Type)
	}
	return n, nil
}

func (p *Parser) advance() {
	p.current = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...any) error {
	return &SyntaxError{Input: p.input, Pos: p.current.Pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.current.Type == TokenNot {
		p.advance()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	switch p.current.Type {
	case TokenLParen:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, p.errorf("expected ')' but got %s", p.current.Type)
		}
		p.advance()
		return expr, nil

	case TokenString:
		value := p.current.Value
		p.advance()
		return NewMatch(FieldAny, OpContains, value, false)

	case TokenWord:
		word := p.current.Value
		p.advance()
		if !isOperator(p.current.Type) {
			return NewMatch(FieldAny, OpContains, word, false)
		}
		return p.parseComparison(word)

	case TokenIllegal:
		return nil, p.errorf("%s", p.current.Value)

	case TokenEOF:
		return nil, p.errorf("unexpected end of input")
	}
	return nil, p.errorf("unexpected %s", p.current.Type)
}

func (p *Parser) parseComparison(fieldName string) (Node, error) {
	op := p.current
	p.advance()
	if p.current.Type != TokenWord && p.current.Type != TokenString {
		return nil, p.errorf("expected value after %s%s", fieldName, op.Value)
	}
	value := p.current.Value
	name := strings.ToLower(fieldName)
	if name == "level" || name == "lvl" {
		node, err := levelComparison(op.Type, value)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		p.advance()
		return node, nil
	}
	field, ok := fieldNames[name]
	fold := false
	if rest, cut := strings.CutPrefix(name, "i"); !ok && cut {
		field, ok = fieldNames[rest]
		fold = ok
	}
	if !ok {
		return nil, &SyntaxError{Input: p.input, Pos: op.Pos - len(fieldName), Msg: fmt.Sprintf("unknown field %q", fieldName)}
	}
	var (
		node Node
		err  error
	)
	switch op.Type {
	case TokenColon, TokenEq:
		node, err = NewMatch(field, OpEquals, value, fold)
	case TokenNeq:
		var m *Match
		m, err = NewMatch(field, OpEquals, value, fold)
		node = &Not{Expr: m}
	case TokenRegex:
		node, err = NewMatch(field, OpRegex, value, fold)
	case TokenContains:
		node, err = NewMatch(field, OpContains, value, fold)
	default:
		return nil, &SyntaxError{Input: p.input, Pos: op.Pos, Msg: fmt.Sprintf("operator %s applies to level only", op.Type)}
	}
	if err != nil {
		return nil, p.errorf("%v", err)
	}
	p.advance()
	return node, nil
}

func levelComparison(op TokenType, value string) (Node, error) {
	lv, ok := model.ParseLevel(value)
	if !ok && !strings.EqualFold(value, "unknown") {
		return nil, fmt.Errorf("invalid level %q", value)
	}
	var cmp CmpOp
	switch op {
	case TokenColon, TokenEq:
		cmp = CmpEQ
	case TokenNeq:
		cmp = CmpNE
	case TokenGte:
		cmp = CmpGE
	case TokenGt:
		cmp = CmpGT
	case TokenLte:
		cmp = CmpLE
	case TokenLt:
		cmp = CmpLT
	default:
		return nil, fmt.Errorf("operator %s does not apply to level", op)
	}
	if !lv.Known() && cmp != CmpEQ && cmp != CmpNE {
		return nil, fmt.Errorf("level unknown cannot be used as a threshold")
	}
	return &LevelCmp{Op: cmp, Level: lv}, nil
}

func isOperator(t TokenType) bool {
	switch t {
	case TokenColon, TokenEq, TokenNeq, TokenRegex, TokenContains, TokenGte, TokenGt, TokenLte, TokenLt:
		return true
	}
	return false
}
