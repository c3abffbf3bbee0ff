package transform

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// InputToken is the designated input placeholder inside a formula
const InputToken = "#{input}"

// probeValue is substituted for the input token when validating a formula
// by trial evaluation
var probeValue = decimal.NewFromInt(5)

// EmptyExpressionError signals an empty or whitespace-only formula
type EmptyExpressionError struct{}

func (EmptyExpressionError) Error() string {
	return "formula cannot be empty"
}

// InvalidExpressionError signals a formula that failed trial evaluation
type InvalidExpressionError struct {
	Formula string
	Err     error
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid formula %q: %v", e.Formula, e.Err)
}

func (e *InvalidExpressionError) Unwrap() error {
	return e.Err
}

// Expression is a validated single-variable numeric formula. Construct via
// New; the zero value is not usable.
type Expression struct {
	formula string
}

// New validates a formula by evaluating it against a probe value with the
// same evaluator used at runtime, so validation and execution cannot
// diverge. Constant formulas without the input token are allowed as long
// as they evaluate.
func New(formula string) (Expression, error) {
	trimmed := strings.TrimSpace(formula)
	if trimmed == "" {
		return Expression{}, EmptyExpressionError{}
	}
	if _, err := evaluate(trimmed, probeValue); err != nil {
		return Expression{}, &InvalidExpressionError{Formula: trimmed, Err: err}
	}
	return Expression{formula: trimmed}, nil
}

// Formula returns the trimmed formula string
func (e Expression) Formula() string {
	return e.formula
}

// Evaluate substitutes the input token with input and evaluates the
// formula using exact decimal arithmetic. A NaN or infinite input is a
// reportable failure, never a value.
func (e Expression) Evaluate(input float64) (decimal.Decimal, error) {
	if e.formula == "" {
		return decimal.Zero, EmptyExpressionError{}
	}
	if math.IsNaN(input) || math.IsInf(input, 0) {
		return decimal.Zero, fmt.Errorf("input is not a finite number: %v", input)
	}
	return evaluate(e.formula, decimal.NewFromFloat(input))
}

// evaluate substitutes the input token and runs the arithmetic parser
func evaluate(formula string, input decimal.Decimal) (decimal.Decimal, error) {
	substituted := strings.ReplaceAll(formula, InputToken, "("+input.String()+")")
	p := &parser{input: substituted}
	value, err := p.parseExpression()
	if err != nil {
		return decimal.Zero, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return decimal.Zero, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

// parser is a recursive-descent evaluator for + - * / with parentheses and
// standard precedence, over decimal values
type parser struct {
	input string
	pos   int
}

func (p *parser) parseExpression() (decimal.Decimal, error) {
	value, err := p.parseTerm()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		p.skipSpaces()
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return decimal.Zero, err
			}
			value = value.Add(right)
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return decimal.Zero, err
			}
			value = value.Sub(right)
		default:
			return value, nil
		}
	}
}

func (p *parser) parseTerm() (decimal.Decimal, error) {
	value, err := p.parseFactor()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		p.skipSpaces()
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return decimal.Zero, err
			}
			value = value.Mul(right)
		case '/':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return decimal.Zero, err
			}
			if right.IsZero() {
				return decimal.Zero, fmt.Errorf("division by zero")
			}
			value = value.Div(right)
		default:
			return value, nil
		}
	}
}

func (p *parser) parseFactor() (decimal.Decimal, error) {
	p.skipSpaces()
	switch p.peek() {
	case '-':
		p.pos++
		value, err := p.parseFactor()
		if err != nil {
			return decimal.Zero, err
		}
		return value.Neg(), nil
	case '(':
		p.pos++
		value, err := p.parseExpression()
		if err != nil {
			return decimal.Zero, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return decimal.Zero, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		p.pos++
		return value, nil
	default:
		return p.parseNumber()
	}
}

func (p *parser) parseNumber() (decimal.Decimal, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		if p.pos >= len(p.input) {
			return decimal.Zero, fmt.Errorf("unexpected end of formula")
		}
		return decimal.Zero, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	value, err := decimal.NewFromString(p.input[start:p.pos])
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q: %w", p.input[start:p.pos], err)
	}
	return value, nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}
