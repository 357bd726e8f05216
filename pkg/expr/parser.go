package expr

import (
	"fmt"
	"strings"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

// MaxExpressionLength is the maximum allowed length for a single
// expression. Expressions are parsed on every workflow-action execution,
// so runaway inputs are rejected up front.
const MaxExpressionLength = 1000

// TypeNames is the closed set of cast target types.
var TypeNames = map[string]bool{
	"int":   true,
	"float": true,
	"str":   true,
	"bool":  true,
}

var contextKeywords = map[string]ContextKind{
	"ACTIONS": ContextActions,
	"SECRETS": ContextSecrets,
	"INPUTS":  ContextInputs,
	"ENV":     ContextEnv,
	"var":     ContextLocalVars,
	"TRIGGER": ContextTrigger,
	"inputs":  ContextTemplateInputs,
	"steps":   ContextTemplateSteps,
}

// Parser is a recursive descent parser for template expressions.
type Parser struct {
	input  string
	tokens []Token
	pos    int
}

// Parse parses a complete expression string (without the ${{ }} wrapper)
// into a parse tree. On failure it returns a *types.ParseError and no
// partial tree.
func Parse(input string) (Node, error) {
	if len(input) > MaxExpressionLength {
		return nil, types.NewParseError(
			fmt.Sprintf("expression exceeds maximum length of %d characters", MaxExpressionLength), input, 0)
	}

	lexer := NewLexer(input)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, err
	}

	p := &Parser{input: input, tokens: tokens}
	node, err := p.parseRoot()
	if err != nil {
		return nil, err
	}

	if p.current().Type != TokenEOF {
		return nil, p.errUnexpected(p.current())
	}

	return node, nil
}

// current returns the current token.
func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF, Pos: len(p.input)}
	}
	return p.tokens[p.pos]
}

// peek returns the next token without consuming it.
func (p *Parser) peek() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: TokenEOF, Pos: len(p.input)}
	}
	return p.tokens[p.pos+1]
}

// advance consumes the current token and returns it.
func (p *Parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

// expect consumes a token of the expected type or returns a parse error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.current()
	if tok.Type != tt {
		return tok, p.errUnexpected(tok)
	}
	p.advance()
	return tok, nil
}

func (p *Parser) errUnexpected(tok Token) error {
	if tok.Type == TokenEOF {
		return types.NewParseError("unexpected end of expression", p.input, tok.Pos)
	}
	return types.NewParseError(
		fmt.Sprintf("unexpected token %s (%q)", tok.Type, tok.Value), p.input, tok.Pos)
}

// parseRoot handles the root productions:
//
//	root := expression
//	      | expression "->" TYPE
//	      | "for" assignment "in" expression
func (p *Parser) parseRoot() (Node, error) {
	if p.current().Type == TokenFor {
		return p.parseIterator()
	}

	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.current().Type == TokenArrow {
		p.advance()
		name, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		if !TypeNames[name.Value] {
			return nil, types.NewParseError(
				fmt.Sprintf("unknown cast type %q (expected int, float, str, or bool)", name.Value), p.input, name.Pos)
		}
		node = &TrailingCastNode{Expr: node, Type: name.Value}
	}

	// A second trailing cast falls through to the caller's EOF check and
	// fails there.
	return node, nil
}

// parseIterator parses `for var.x in collection`.
func (p *Parser) parseIterator() (Node, error) {
	p.advance() // consume 'for'

	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(TokenIn); err != nil {
		return nil, err
	}

	collection, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	return &IteratorNode{VarPath: name.Value + path, Collection: collection}, nil
}

// parseExpression is the entry point below root. Precedence (low to
// high): ternary, ||, &&, !, comparison/membership, + -, * / %,
// unary -, primary.
func (p *Parser) parseExpression() (Node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	// `true_branch if cond else false_branch`
	if p.current().Type == TokenIf {
		p.advance()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenElse); err != nil {
			return nil, err
		}
		falseBranch, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &TernaryNode{True: left, Cond: cond, False: falseBranch}, nil
	}

	return left, nil
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.current().Type == TokenBang {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: "!", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	switch p.current().Type {
	case TokenEq, TokenNeq, TokenLt, TokenGt, TokenLte, TokenGte:
		op := p.advance().Value
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		return &BinaryNode{Op: op, Left: left, Right: right}, nil
	case TokenIn:
		p.advance()
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		return &BinaryNode{Op: "in", Left: left, Right: right}, nil
	case TokenNot:
		if p.peek().Type == TokenIn {
			p.advance() // consume 'not'
			p.advance() // consume 'in'
			right, err := p.parseAddition()
			if err != nil {
				return nil, err
			}
			return &BinaryNode{Op: "not in", Left: left, Right: right}, nil
		}
		return nil, p.errUnexpected(p.current())
	case TokenIs:
		p.advance()
		op := "is"
		if p.current().Type == TokenNot {
			p.advance()
			op = "is not"
		}
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		return &BinaryNode{Op: op, Left: left, Right: right}, nil
	}

	return left, nil
}

func (p *Parser) parseAddition() (Node, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenPlus || p.current().Type == TokenMinus {
		op := p.advance().Value
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplication() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenStar || p.current().Type == TokenSlash ||
		p.current().Type == TokenPercent {
		op := p.advance().Value
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if p.current().Type == TokenMinus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: "-", Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.current()

	switch tok.Type {
	case TokenInt:
		p.advance()
		return &LiteralNode{TokenType: TokenInt, IntVal: tok.IntVal}, nil
	case TokenFloat:
		p.advance()
		return &LiteralNode{TokenType: TokenFloat, FloatVal: tok.FloatVal}, nil
	case TokenString:
		p.advance()
		return &LiteralNode{TokenType: TokenString, StrVal: tok.StrVal}, nil
	case TokenTrue:
		p.advance()
		return &LiteralNode{TokenType: TokenTrue, BoolVal: true}, nil
	case TokenFalse:
		p.advance()
		return &LiteralNode{TokenType: TokenFalse, BoolVal: false}, nil
	case TokenNone:
		p.advance()
		return &LiteralNode{TokenType: TokenNone}, nil
	case TokenIdent:
		return p.parseIdent()
	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenLBracket:
		return p.parseListLiteral()
	case TokenLBrace:
		return p.parseDictLiteral()
	default:
		return nil, p.errUnexpected(tok)
	}
}

// parseIdent dispatches on identifier heads: FN calls, typecasts, and
// context references.
func (p *Parser) parseIdent() (Node, error) {
	tok := p.current()

	if tok.Value == "FN" {
		return p.parseFunction()
	}

	if TypeNames[tok.Value] && p.peek().Type == TokenLParen {
		p.advance() // type name
		p.advance() // (
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &CastNode{Type: tok.Value, Expr: inner}, nil
	}

	kind, ok := contextKeywords[tok.Value]
	if !ok {
		return nil, types.NewParseError(
			fmt.Sprintf("unknown context %q", tok.Value), p.input, tok.Pos)
	}
	p.advance()

	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if path == "" && kind != ContextTrigger {
		return nil, types.NewParseError(
			fmt.Sprintf("%s reference requires a path", tok.Value), p.input, tok.Pos)
	}

	return &ContextNode{Kind: kind, Path: path}, nil
}

// parseFunction parses FN.name(args) or FN.name.map(args).
func (p *Parser) parseFunction() (Node, error) {
	p.advance() // consume FN
	if _, err := p.expect(TokenDot); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}

	mapped := false
	if p.current().Type == TokenDot && p.peek().Type == TokenIdent && p.peek().Value == "map" {
		p.advance()
		p.advance()
		mapped = true
	}

	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}

	return &FunctionNode{Name: name.Value, Mapped: mapped, Args: args}, nil
}

// parsePath parses zero or more jsonpath-style segments following a
// context keyword: `.identifier`, `[int]`, `[*]`, or `['key']`. The
// segments are returned in textual form for the resolver.
func (p *Parser) parsePath() (string, error) {
	var sb strings.Builder

	for {
		switch p.current().Type {
		case TokenDot:
			if p.peek().Type != TokenIdent {
				return "", p.errUnexpected(p.peek())
			}
			p.advance()
			name := p.advance()
			sb.WriteString("." + name.Value)
		case TokenLBracket:
			p.advance()
			switch idx := p.current(); idx.Type {
			case TokenInt:
				p.advance()
				fmt.Fprintf(&sb, "[%d]", idx.IntVal)
			case TokenStar:
				p.advance()
				sb.WriteString("[*]")
			case TokenString:
				p.advance()
				sb.WriteString("[" + quoteKey(idx.StrVal) + "]")
			default:
				return "", p.errUnexpected(idx)
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return "", err
			}
		default:
			return sb.String(), nil
		}
	}
}

// quoteKey re-quotes a bracket key with single quotes for the resolver.
func quoteKey(key string) string {
	escaped := strings.ReplaceAll(key, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// parseListLiteral parses [expr, expr, ...].
func (p *Parser) parseListLiteral() (Node, error) {
	p.advance() // consume [

	var elements []Node
	for p.current().Type != TokenRBracket {
		if len(elements) > 0 {
			if _, err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		elements = append(elements, elem)
	}

	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}

	return &ListNode{Elements: elements}, nil
}

// parseDictLiteral parses { key: value, ... }.
func (p *Parser) parseDictLiteral() (Node, error) {
	p.advance() // consume {

	var keys []Node
	var values []Node
	for p.current().Type != TokenRBrace {
		if len(keys) > 0 {
			if _, err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
		key, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		values = append(values, value)
	}

	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}

	return &DictNode{Keys: keys, Values: values}, nil
}

// parseArgList parses (expr, expr, ...).
func (p *Parser) parseArgList() ([]Node, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var args []Node
	for p.current().Type != TokenRParen {
		if len(args) > 0 {
			if _, err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	return args, nil
}
