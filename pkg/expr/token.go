// Package expr implements the workflow template expression language:
// the lexer and recursive-descent parser for the `${{ ... }}` DSL used
// in workflow definitions to reference action results, secrets, inputs,
// environment values, and to call built-in functions.
package expr

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Literals
	TokenInt    TokenType = iota // integer literal
	TokenFloat                   // float literal
	TokenString                  // string literal
	TokenTrue                    // True
	TokenFalse                   // False
	TokenNone                    // None

	// Identifiers
	TokenIdent // identifier (context keyword, attribute, type name)

	// Punctuation
	TokenDot      // .
	TokenComma    // ,
	TokenColon    // :
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
	TokenArrow    // ->

	// Arithmetic
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %

	// Comparison
	TokenEq  // ==
	TokenNeq // !=
	TokenLt  // <
	TokenGt  // >
	TokenLte // <=
	TokenGte // >=

	// Logical
	TokenAnd  // &&
	TokenOr   // ||
	TokenBang // !

	// Keywords
	TokenIn   // in
	TokenIs   // is
	TokenNot  // not
	TokenIf   // if
	TokenElse // else
	TokenFor  // for

	// Special
	TokenEOF // end of expression
)

// Token represents a single lexical token.
type Token struct {
	Type     TokenType
	Value    string  // raw string value
	IntVal   int64   // parsed int (for TokenInt)
	FloatVal float64 // parsed float (for TokenFloat)
	StrVal   string  // parsed string (for TokenString, with escapes resolved)
	Pos      int     // byte offset in source
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenInt:
		return "INT"
	case TokenFloat:
		return "FLOAT"
	case TokenString:
		return "STRING"
	case TokenTrue:
		return "TRUE"
	case TokenFalse:
		return "FALSE"
	case TokenNone:
		return "NONE"
	case TokenIdent:
		return "IDENT"
	case TokenDot:
		return "DOT"
	case TokenComma:
		return "COMMA"
	case TokenColon:
		return "COLON"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenLBracket:
		return "LBRACKET"
	case TokenRBracket:
		return "RBRACKET"
	case TokenLBrace:
		return "LBRACE"
	case TokenRBrace:
		return "RBRACE"
	case TokenArrow:
		return "ARROW"
	case TokenPlus:
		return "PLUS"
	case TokenMinus:
		return "MINUS"
	case TokenStar:
		return "STAR"
	case TokenSlash:
		return "SLASH"
	case TokenPercent:
		return "PERCENT"
	case TokenEq:
		return "EQ"
	case TokenNeq:
		return "NEQ"
	case TokenLt:
		return "LT"
	case TokenGt:
		return "GT"
	case TokenLte:
		return "LTE"
	case TokenGte:
		return "GTE"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenBang:
		return "BANG"
	case TokenIn:
		return "IN"
	case TokenIs:
		return "IS"
	case TokenNot:
		return "NOT"
	case TokenIf:
		return "IF"
	case TokenElse:
		return "ELSE"
	case TokenFor:
		return "FOR"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}
