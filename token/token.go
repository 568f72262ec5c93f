// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package token

import (
	"strconv"
)

var keywords map[string]Token

// Token represents a token.
type Token int

// List of tokens
const (
	Illegal Token = iota
	EOF
	Newline
	Indent
	Dedent
	_literalBeg
	Ident
	Int
	Float
	String
	_literalEnd
	_operatorBeg
	Add            // +
	Sub            // -
	Mul            // *
	Quo            // /
	FloorQuo       // //
	Rem            // %
	Pow            // **
	AddAssign      // +=
	SubAssign      // -=
	MulAssign      // *=
	QuoAssign      // /=
	FloorQuoAssign // //=
	RemAssign      // %=
	PowAssign      // **=
	Equal          // ==
	NotEqual       // !=
	Less           // <
	LessEq         // <=
	Greater        // >
	GreaterEq      // >=
	Assign         // =
	LParen         // (
	RParen         // )
	LBrack         // [
	RBrack         // ]
	Comma          // ,
	Colon          // :
	Semicolon      // ;
	_operatorEnd
	_keywordBeg
	False
	None
	True
	And
	Break
	Continue
	Def
	Elif
	Else
	For
	Global
	If
	In
	Not
	Or
	Pass
	Return
	While
	_keywordEnd
)

var tokens = [...]string{
	Illegal:        "ILLEGAL",
	EOF:            "EOF",
	Newline:        "NEWLINE",
	Indent:         "INDENT",
	Dedent:         "DEDENT",
	Ident:          "IDENT",
	Int:            "INT",
	Float:          "FLOAT",
	String:         "STRING",
	Add:            "+",
	Sub:            "-",
	Mul:            "*",
	Quo:            "/",
	FloorQuo:       "//",
	Rem:            "%",
	Pow:            "**",
	AddAssign:      "+=",
	SubAssign:      "-=",
	MulAssign:      "*=",
	QuoAssign:      "/=",
	FloorQuoAssign: "//=",
	RemAssign:      "%=",
	PowAssign:      "**=",
	Equal:          "==",
	NotEqual:       "!=",
	Less:           "<",
	LessEq:         "<=",
	Greater:        ">",
	GreaterEq:      ">=",
	Assign:         "=",
	LParen:         "(",
	RParen:         ")",
	LBrack:         "[",
	RBrack:         "]",
	Comma:          ",",
	Colon:          ":",
	Semicolon:      ";",
	False:          "False",
	None:           "None",
	True:           "True",
	And:            "and",
	Break:          "break",
	Continue:       "continue",
	Def:            "def",
	Elif:           "elif",
	Else:           "else",
	For:            "for",
	Global:         "global",
	If:             "if",
	In:             "in",
	Not:            "not",
	Or:             "or",
	Pass:           "pass",
	Return:         "return",
	While:          "while",
}

func (tok Token) String() string {
	s := ""

	if 0 <= tok && tok < Token(len(tokens)) {
		s = tokens[tok]
	}

	if s == "" {
		s = "token(" + strconv.Itoa(int(tok)) + ")"
	}
	return s
}

// Precedence levels of binary operators, lowest to highest.
const (
	LowestPrec  = 0
	OrPrec      = 1
	AndPrec     = 2
	NotPrec     = 3
	ComparePrec = 4
	UnaryPrec   = 7
	PowPrec     = 8
)

// Precedence returns the binary precedence of the token or LowestPrec if the
// token is not a binary operator. `not` and unary signs are prefix operators
// and are handled by the parser with NotPrec and UnaryPrec.
func (tok Token) Precedence() int {
	switch tok {
	case Or:
		return OrPrec
	case And:
		return AndPrec
	case Equal, NotEqual, Less, LessEq, Greater, GreaterEq:
		return ComparePrec
	case Add, Sub:
		return 5
	case Mul, Quo, FloorQuo, Rem:
		return 6
	case Pow:
		return PowPrec
	}
	return LowestPrec
}

// IsLiteral returns true if the token is a literal.
func (tok Token) IsLiteral() bool {
	return _literalBeg < tok && tok < _literalEnd
}

// IsOperator returns true if the token is an operator or a delimiter.
func (tok Token) IsOperator() bool {
	return _operatorBeg < tok && tok < _operatorEnd
}

// IsKeyword returns true if the token is a keyword.
func (tok Token) IsKeyword() bool {
	return _keywordBeg < tok && tok < _keywordEnd
}

// IsComparison returns true for comparison operators.
func (tok Token) IsComparison() bool {
	return tok.Precedence() == ComparePrec
}

// IsAssign returns true for plain and augmented assignment operators.
func (tok Token) IsAssign() bool {
	return tok == Assign || (AddAssign <= tok && tok <= PowAssign)
}

// BinaryOperator returns the arithmetic operator of an augmented assignment
// token, e.g. Add for AddAssign. Other tokens are returned as is.
func (tok Token) BinaryOperator() Token {
	if AddAssign <= tok && tok <= PowAssign {
		return Add + (tok - AddAssign)
	}
	return tok
}

// Keywords returns the list of keywords.
func Keywords() []string {
	list := make([]string, 0, _keywordEnd-_keywordBeg-1)
	for i := _keywordBeg + 1; i < _keywordEnd; i++ {
		list = append(list, tokens[i])
	}
	return list
}

func init() {
	keywords = make(map[string]Token)
	for i := _keywordBeg + 1; i < _keywordEnd; i++ {
		keywords[tokens[i]] = i
	}
}

// Lookup returns corresponding keyword if ident is a keyword.
func Lookup(ident string) Token {
	if tok, isKeyword := keywords[ident]; isKeyword {
		return tok
	}
	return Ident
}
