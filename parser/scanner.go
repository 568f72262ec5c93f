// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package parser

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/minipyc/minipyc/token"
)

const (
	bom     = 0xFEFF // byte order mark, only permitted as very first character
	tabSize = 8
)

// Scanner reads the source text and produces tokens. Line structure is part
// of the token stream: logical lines end with token.Newline and changes of
// indentation produce token.Indent and token.Dedent.
type Scanner struct {
	file       *SourceFile
	src        []byte
	ch         rune
	offset     int
	readOffset int
	parens     int   // depth of open ( and [
	indents    []int // indentation stack, always starts with 0
	dedents    int   // pending DEDENT tokens
	lineStart  bool
	lastTok    token.Token
	err        *LexError
}

// NewScanner creates a Scanner.
func NewScanner(file *SourceFile, src []byte) *Scanner {
	if file.Size != len(src) {
		panic(fmt.Sprintf("file size (%d) does not match src len (%d)",
			file.Size, len(src)))
	}
	s := &Scanner{
		file:      file,
		src:       src,
		ch:        ' ',
		indents:   []int{0},
		lineStart: true,
		lastTok:   token.Newline,
	}
	s.next()
	if s.ch == bom {
		s.next()
	}
	return s
}

// Err returns the first error found while scanning, or nil.
func (s *Scanner) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}

// Scan returns the next token. Once an error is found Scan only returns
// token.Illegal and Err reports the error.
func (s *Scanner) Scan() (tok token.Token, literal string, pos Pos) {
	tok, literal, pos = s.scan()
	if s.err != nil {
		tok, literal = token.Illegal, ""
	}
	s.lastTok = tok
	return
}

func (s *Scanner) scan() (tok token.Token, literal string, pos Pos) {
	if s.err != nil {
		return token.Illegal, "", s.file.FileSetPos(s.offset)
	}
	if s.dedents > 0 {
		s.dedents--
		return token.Dedent, "", s.file.FileSetPos(s.offset)
	}
	if s.lineStart {
		s.lineStart = false
		if tok, ok := s.scanIndent(); ok {
			return tok, "", s.file.FileSetPos(s.offset)
		}
	}

	s.skipWhitespace()
	pos = s.file.FileSetPos(s.offset)

	switch ch := s.ch; {
	case isLetter(ch):
		literal = s.scanIdentifier()
		return token.Lookup(literal), literal, pos
	case isDecimal(ch) || ch == '.' && isDecimal(rune(s.peek())):
		tok, literal = s.scanNumber()
		return tok, literal, pos
	}

	ch := s.ch
	s.next()
	switch ch {
	case -1:
		return s.scanEOF(pos)
	case '\n':
		s.lineStart = true
		return token.Newline, "\n", pos
	case '"', '\'':
		return token.String, s.scanString(ch), pos
	case '+':
		tok = s.switch2(token.Add, token.AddAssign)
	case '-':
		tok = s.switch2(token.Sub, token.SubAssign)
	case '*':
		if s.ch == '*' {
			s.next()
			tok = s.switch2(token.Pow, token.PowAssign)
		} else {
			tok = s.switch2(token.Mul, token.MulAssign)
		}
	case '/':
		if s.ch == '/' {
			s.next()
			tok = s.switch2(token.FloorQuo, token.FloorQuoAssign)
		} else {
			tok = s.switch2(token.Quo, token.QuoAssign)
		}
	case '%':
		tok = s.switch2(token.Rem, token.RemAssign)
	case '=':
		tok = s.switch2(token.Assign, token.Equal)
	case '!':
		if s.ch != '=' {
			s.error(s.file.Offset(pos), "invalid character '!'")
			return token.Illegal, "", pos
		}
		s.next()
		tok = token.NotEqual
	case '<':
		tok = s.switch2(token.Less, token.LessEq)
	case '>':
		tok = s.switch2(token.Greater, token.GreaterEq)
	case '(':
		s.parens++
		tok = token.LParen
	case ')':
		if s.parens > 0 {
			s.parens--
		}
		tok = token.RParen
	case '[':
		s.parens++
		tok = token.LBrack
	case ']':
		if s.parens > 0 {
			s.parens--
		}
		tok = token.RBrack
	case ',':
		tok = token.Comma
	case ':':
		tok = token.Colon
	case ';':
		tok = token.Semicolon
	case '\\':
		s.error(s.file.Offset(pos),
			"unexpected character after line continuation character")
		return token.Illegal, "", pos
	default:
		s.error(s.file.Offset(pos), fmt.Sprintf("invalid character %#U", ch))
		return token.Illegal, "", pos
	}
	return tok, tok.String(), pos
}

// scanEOF completes the last logical line and closes open blocks before EOF.
func (s *Scanner) scanEOF(pos Pos) (token.Token, string, Pos) {
	if s.lastTok != token.Newline && s.lastTok != token.Dedent {
		return token.Newline, "", pos
	}
	if n := len(s.indents); n > 1 {
		s.dedents = n - 2
		s.indents = s.indents[:1]
		return token.Dedent, "", pos
	}
	return token.EOF, "", pos
}

// scanIndent measures the indentation of a new logical line, skipping blank
// and comment-only lines.
func (s *Scanner) scanIndent() (token.Token, bool) {
	for {
		col := 0
	measure:
		for {
			switch s.ch {
			case ' ':
				col++
			case '\t':
				col = (col/tabSize + 1) * tabSize
			case '\f':
				col = 0
			default:
				break measure
			}
			s.next()
		}

		switch s.ch {
		case '#':
			s.skipComment()
			continue
		case '\n', '\r':
			s.next()
			continue
		case -1:
			return 0, false
		}

		top := s.indents[len(s.indents)-1]
		switch {
		case col > top:
			s.indents = append(s.indents, col)
			return token.Indent, true
		case col < top:
			n := 0
			for len(s.indents) > 1 && s.indents[len(s.indents)-1] > col {
				s.indents = s.indents[:len(s.indents)-1]
				n++
			}
			if s.indents[len(s.indents)-1] != col {
				s.error(s.offset,
					"unindent does not match any outer indentation level")
				return token.Illegal, true
			}
			s.dedents = n - 1
			return token.Dedent, true
		}
		return 0, false
	}
}

func (s *Scanner) skipWhitespace() {
	for {
		switch s.ch {
		case ' ', '\t', '\f', '\r':
			s.next()
		case '#':
			s.skipComment()
		case '\\':
			rest := s.src[s.readOffset:]
			switch {
			case len(rest) > 0 && rest[0] == '\n':
				s.next()
			case len(rest) > 1 && rest[0] == '\r' && rest[1] == '\n':
				s.next()
				s.next()
			default:
				return
			}
			s.next()
		case '\n':
			if s.parens == 0 {
				return
			}
			s.next()
		default:
			return
		}
	}
}

func (s *Scanner) skipComment() {
	for s.ch != '\n' && s.ch >= 0 {
		s.next()
	}
}

func (s *Scanner) scanIdentifier() string {
	offs := s.offset
	for isLetter(s.ch) || isDigit(s.ch) {
		s.next()
	}
	return string(s.src[offs:s.offset])
}

func (s *Scanner) scanNumber() (token.Token, string) {
	offs := s.offset
	tok := token.Int
	kind := "decimal"

	if s.ch == '0' && strings.IndexByte("xXoObB", s.peek()) >= 0 {
		s.next()
		var base int
		switch lower(s.ch) {
		case 'x':
			base, kind = 16, "hexadecimal"
		case 'o':
			base, kind = 8, "octal"
		default:
			base, kind = 2, "binary"
		}
		s.next()
		if !s.digits(base, true) {
			s.error(offs, "invalid "+kind+" literal")
		}
	} else {
		if s.ch != '.' && !s.digits(10, false) {
			s.error(offs, "invalid decimal literal")
		}
		if s.ch == '.' {
			tok, kind = token.Float, "float"
			s.next()
			if isDecimal(s.ch) && !s.digits(10, false) {
				s.error(offs, "invalid decimal literal")
			}
		}
		if lower(s.ch) == 'e' {
			tok, kind = token.Float, "float"
			s.next()
			if s.ch == '+' || s.ch == '-' {
				s.next()
			}
			if !isDecimal(s.ch) || !s.digits(10, false) {
				s.error(offs, "invalid float literal")
			}
		}
	}

	if isLetter(s.ch) || isDigit(s.ch) {
		for isLetter(s.ch) || isDigit(s.ch) {
			s.next()
		}
		s.error(offs, "invalid "+kind+" literal")
	}

	literal := string(s.src[offs:s.offset])
	if s.err == nil {
		var err error
		if tok == token.Int {
			_, err = parseIntLiteral(literal)
		} else {
			_, err = parseFloatLiteral(literal)
		}
		if err != nil {
			s.error(offs, err.Error())
		}
	}
	return tok, literal
}

// digits consumes digits of the given base separated by single underscores
// and reports whether at least one digit was read with no dangling
// underscore.
func (s *Scanner) digits(base int, underscoreFirst bool) bool {
	var n int
	var underscore bool
	if underscoreFirst && s.ch == '_' {
		underscore = true
		s.next()
	}
	for {
		if s.ch == '_' {
			if underscore {
				return false
			}
			underscore = true
			s.next()
			continue
		}
		if digitVal(s.ch) >= base {
			break
		}
		underscore = false
		n++
		s.next()
	}
	return n > 0 && !underscore
}

func (s *Scanner) scanString(quote rune) string {
	offs := s.offset - 1 // opening quote is consumed
	for {
		ch := s.ch
		if ch == '\n' || ch < 0 {
			s.error(offs, "unterminated string literal")
			break
		}
		s.next()
		if ch == quote {
			break
		}
		if ch == '\\' && s.ch >= 0 {
			if s.ch == '\r' && s.peek() == '\n' {
				s.next()
			}
			s.next()
		}
	}

	literal := string(s.src[offs:s.offset])
	if s.err == nil {
		if _, err := Unquote(literal); err != nil {
			s.error(offs, err.Error())
		}
	}
	return literal
}

func (s *Scanner) switch2(tok0, tok1 token.Token) token.Token {
	if s.ch == '=' {
		s.next()
		return tok1
	}
	return tok0
}

func (s *Scanner) error(offset int, msg string) {
	if s.err != nil {
		return
	}
	s.err = &LexError{
		Pos: s.file.Position(s.file.FileSetPos(offset)),
		Msg: msg,
	}
}

func (s *Scanner) next() {
	if s.readOffset < len(s.src) {
		s.offset = s.readOffset
		if s.ch == '\n' {
			s.file.AddLine(s.offset)
		}
		r, w := rune(s.src[s.readOffset]), 1
		switch {
		case r == 0:
			s.error(s.offset, "illegal character NUL")
		case r >= utf8.RuneSelf:
			// not ASCII
			r, w = utf8.DecodeRune(s.src[s.readOffset:])
			if r == utf8.RuneError && w == 1 {
				s.error(s.offset, "illegal UTF-8 encoding")
			} else if r == bom && s.offset > 0 {
				s.error(s.offset, "illegal byte order mark")
			}
		}
		s.readOffset += w
		s.ch = r
	} else {
		s.offset = len(s.src)
		if s.ch == '\n' {
			s.file.AddLine(s.offset)
		}
		s.ch = -1 // eof
	}
}

func (s *Scanner) peek() byte {
	if s.readOffset < len(s.src) {
		return s.src[s.readOffset]
	}
	return 0
}

// Lexeme is a token with its literal text and resolved position.
type Lexeme struct {
	Token   token.Token
	Literal string
	Pos     SourceFilePos
}

func (l Lexeme) String() string {
	if l.Token.IsLiteral() {
		return fmt.Sprintf("%s %s(%s)", l.Pos, l.Token, l.Literal)
	}
	return fmt.Sprintf("%s %s", l.Pos, l.Token)
}

// Tokens returns the token sequence of src. Iteration stops after token.EOF
// or after yielding the first *LexError. Each iteration scans the source
// from the beginning.
func Tokens(file *SourceFile, src []byte) iter.Seq2[Lexeme, error] {
	return func(yield func(Lexeme, error) bool) {
		s := NewScanner(file, src)
		for {
			tok, literal, pos := s.Scan()
			if err := s.Err(); err != nil {
				yield(Lexeme{}, err)
				return
			}
			lex := Lexeme{Token: tok, Literal: literal, Pos: file.Position(pos)}
			if !yield(lex, nil) || tok == token.EOF {
				return
			}
		}
	}
}

// Unquote decodes a quoted string literal. Unknown escape sequences are kept
// as is, including the backslash.
func Unquote(literal string) (string, error) {
	n := len(literal)
	if n < 2 || literal[0] != literal[n-1] ||
		(literal[0] != '"' && literal[0] != '\'') {
		return "", errors.New("invalid string literal")
	}
	body := literal[1 : n-1]
	if strings.IndexByte(body, '\\') < 0 {
		return body, nil
	}

	var sb strings.Builder
	sb.Grow(len(body))
	for i := 0; i < len(body); {
		c := body[i]
		i++
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		if i == len(body) {
			return "", errors.New("unterminated string literal")
		}
		c = body[i]
		i++
		switch c {
		case '\n':
		case '\r':
			if i < len(body) && body[i] == '\n' {
				i++
			}
		case '\\', '\'', '"':
			sb.WriteByte(c)
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'v':
			sb.WriteByte('\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := rune(c - '0')
			for k := 0; k < 2 && i < len(body) && '0' <= body[i] && body[i] <= '7'; k++ {
				v = v*8 + rune(body[i]-'0')
				i++
			}
			sb.WriteRune(v)
		case 'x', 'u', 'U':
			size := 2
			switch c {
			case 'u':
				size = 4
			case 'U':
				size = 8
			}
			if i+size > len(body) {
				return "", fmt.Errorf("truncated \\%c escape", c)
			}
			v, err := strconv.ParseUint(body[i:i+size], 16, 32)
			if err != nil {
				return "", fmt.Errorf("truncated \\%c escape", c)
			}
			if v > unicode.MaxRune {
				return "", errors.New("illegal Unicode character")
			}
			sb.WriteRune(rune(v))
			i += size
		default:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

func parseIntLiteral(literal string) (int64, error) {
	clean := strings.ReplaceAll(literal, "_", "")
	base := 10
	if len(clean) > 1 && clean[0] == '0' {
		switch lower(rune(clean[1])) {
		case 'x':
			base = 16
		case 'o':
			base = 8
		case 'b':
			base = 2
		default:
			if strings.Trim(clean, "0") != "" {
				return 0, errors.New(
					"leading zeros in decimal integer literals are not permitted")
			}
		}
		if base != 10 {
			clean = clean[2:]
		}
	}
	v, err := strconv.ParseInt(clean, base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("integer literal %s is out of range", literal)
		}
		return 0, fmt.Errorf("invalid integer literal %s", literal)
	}
	return v, nil
}

func parseFloatLiteral(literal string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(literal, "_", ""), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("invalid float literal %s", literal)
	}
	return v, nil
}

func lower(ch rune) rune { return ('a' - 'A') | ch }

func isLetter(ch rune) bool {
	return 'a' <= lower(ch) && lower(ch) <= 'z' || ch == '_' ||
		ch >= utf8.RuneSelf && unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return isDecimal(ch) || ch >= utf8.RuneSelf && unicode.IsDigit(ch)
}

func isDecimal(ch rune) bool { return '0' <= ch && ch <= '9' }

func digitVal(ch rune) int {
	switch {
	case '0' <= ch && ch <= '9':
		return int(ch - '0')
	case 'a' <= lower(ch) && lower(ch) <= 'f':
		return int(lower(ch) - 'a' + 10)
	}
	return 16 // larger than any legal digit val
}
