package expr

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

// Lexer tokenizes a template expression string.
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize scans the entire input and returns all tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return l.tokens, nil
}

// next returns the next token from the input.
func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	ch := l.input[l.pos]

	// String literals
	if ch == '"' || ch == '\'' {
		return l.readString(ch)
	}

	// Number literals
	if ch >= '0' && ch <= '9' {
		return l.readNumber()
	}

	// Two-character operators
	if l.pos+1 < len(l.input) {
		two := l.input[l.pos : l.pos+2]
		switch two {
		case "->":
			return l.emit2(TokenArrow, two), nil
		case "==":
			return l.emit2(TokenEq, two), nil
		case "!=":
			return l.emit2(TokenNeq, two), nil
		case "<=":
			return l.emit2(TokenLte, two), nil
		case ">=":
			return l.emit2(TokenGte, two), nil
		case "&&":
			return l.emit2(TokenAnd, two), nil
		case "||":
			return l.emit2(TokenOr, two), nil
		}
	}

	// Single-character operators
	switch ch {
	case '+':
		return l.emit1(TokenPlus), nil
	case '-':
		return l.emit1(TokenMinus), nil
	case '*':
		return l.emit1(TokenStar), nil
	case '/':
		return l.emit1(TokenSlash), nil
	case '%':
		return l.emit1(TokenPercent), nil
	case '<':
		return l.emit1(TokenLt), nil
	case '>':
		return l.emit1(TokenGt), nil
	case '!':
		return l.emit1(TokenBang), nil
	case '(':
		return l.emit1(TokenLParen), nil
	case ')':
		return l.emit1(TokenRParen), nil
	case '[':
		return l.emit1(TokenLBracket), nil
	case ']':
		return l.emit1(TokenRBracket), nil
	case '{':
		return l.emit1(TokenLBrace), nil
	case '}':
		return l.emit1(TokenRBrace), nil
	case '.':
		return l.emit1(TokenDot), nil
	case ',':
		return l.emit1(TokenComma), nil
	case ':':
		return l.emit1(TokenColon), nil
	}

	// Identifiers and keywords
	if isIdentStart(ch) {
		return l.readIdentifier(), nil
	}

	return Token{}, types.NewParseError("unexpected character "+strconv.Quote(string(ch)), l.input, l.pos)
}

func (l *Lexer) emit1(tt TokenType) Token {
	tok := Token{Type: tt, Value: l.input[l.pos : l.pos+1], Pos: l.pos}
	l.pos++
	return tok
}

func (l *Lexer) emit2(tt TokenType, raw string) Token {
	tok := Token{Type: tt, Value: raw, Pos: l.pos}
	l.pos += 2
	return tok
}

// readString reads a quoted string literal.
func (l *Lexer) readString(quote byte) (Token, error) {
	start := l.pos
	l.pos++ // skip opening quote

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			escaped := l.input[l.pos]
			switch escaped {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '\'':
				sb.WriteByte('\'')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(escaped)
			}
			l.pos++
			continue
		}
		if ch == quote {
			l.pos++ // skip closing quote
			return Token{
				Type:   TokenString,
				Value:  l.input[start:l.pos],
				StrVal: sb.String(),
				Pos:    start,
			}, nil
		}
		sb.WriteByte(ch)
		l.pos++
	}

	return Token{}, types.NewParseError("unterminated string", l.input, start)
}

// readNumber reads an integer or float literal. Int vs float is decided
// by the presence of a decimal point or exponent.
func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	isFloat := false

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch >= '0' && ch <= '9' {
			l.pos++
		} else if ch == '.' && !isFloat {
			// Only a digit after '.' makes this a float; a trailing dot
			// belongs to a path segment.
			if l.pos+1 < len(l.input) && l.input[l.pos+1] >= '0' && l.input[l.pos+1] <= '9' {
				isFloat = true
				l.pos++
			} else {
				break
			}
		} else if ch == 'e' || ch == 'E' {
			isFloat = true
			l.pos++
			if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
				l.pos++
			}
		} else {
			break
		}
	}

	raw := l.input[start:l.pos]
	if isFloat {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Token{}, types.NewParseError("invalid float literal "+strconv.Quote(raw), l.input, start)
		}
		return Token{Type: TokenFloat, Value: raw, FloatVal: f, Pos: start}, nil
	}

	i, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Token{}, types.NewParseError("invalid integer literal "+strconv.Quote(raw), l.input, start)
	}
	return Token{Type: TokenInt, Value: raw, IntVal: i, Pos: start}, nil
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}

	word := l.input[start:l.pos]
	switch word {
	case "True", "true":
		return Token{Type: TokenTrue, Value: word, Pos: start}
	case "False", "false":
		return Token{Type: TokenFalse, Value: word, Pos: start}
	case "None", "null":
		return Token{Type: TokenNone, Value: word, Pos: start}
	case "in":
		return Token{Type: TokenIn, Value: word, Pos: start}
	case "is":
		return Token{Type: TokenIs, Value: word, Pos: start}
	case "not":
		return Token{Type: TokenNot, Value: word, Pos: start}
	case "if":
		return Token{Type: TokenIf, Value: word, Pos: start}
	case "else":
		return Token{Type: TokenElse, Value: word, Pos: start}
	case "for":
		return Token{Type: TokenFor, Value: word, Pos: start}
	default:
		return Token{Type: TokenIdent, Value: word, Pos: start}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
