package parser_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/minipyc/minipyc/parser"
	"github.com/minipyc/minipyc/token"
)

func scanAll(src string) ([]Lexeme, error) {
	file := NewFileSet().AddFile("test", -1, len(src))
	var out []Lexeme
	for lex, err := range Tokens(file, []byte(src)) {
		if err != nil {
			return out, err
		}
		out = append(out, lex)
	}
	return out, nil
}

func kinds(lexemes []Lexeme) []token.Token {
	out := make([]token.Token, 0, len(lexemes))
	for _, lex := range lexemes {
		out = append(out, lex.Token)
	}
	return out
}

func TestScannerLineStructure(t *testing.T) {
	const (
		ident   = token.Ident
		nl      = token.Newline
		indent  = token.Indent
		dedent  = token.Dedent
		eof     = token.EOF
		integer = token.Int
	)
	testCases := []struct {
		name   string
		input  string
		expect []token.Token
	}{
		{"simple", "x = 1\n",
			[]token.Token{ident, token.Assign, integer, nl, eof}},
		{"no final newline", "x = 1",
			[]token.Token{ident, token.Assign, integer, nl, eof}},
		{"empty", "", []token.Token{eof}},
		{"blank lines only", "\n\n  \n", []token.Token{eof}},
		{"block", "if x:\n    y = 1\nz\n",
			[]token.Token{token.If, ident, token.Colon, nl,
				indent, ident, token.Assign, integer, nl,
				dedent, ident, nl, eof}},
		{"nested blocks closed at EOF", "while a:\n  if b:\n    c\n",
			[]token.Token{token.While, ident, token.Colon, nl,
				indent, token.If, ident, token.Colon, nl,
				indent, ident, nl, dedent, dedent, eof}},
		{"nested blocks closed at once", "if a:\n  if b:\n    c\nd\n",
			[]token.Token{token.If, ident, token.Colon, nl,
				indent, token.If, ident, token.Colon, nl,
				indent, ident, nl, dedent, dedent, ident, nl, eof}},
		{"implicit line joining", "x = (1 +\n    2)\n",
			[]token.Token{ident, token.Assign, token.LParen, integer,
				token.Add, integer, token.RParen, nl, eof}},
		{"implicit line joining in list", "x = [\n1,\n  2,\n]\n",
			[]token.Token{ident, token.Assign, token.LBrack, integer,
				token.Comma, integer, token.Comma, token.RBrack, nl, eof}},
		{"explicit line joining", "x = 1 + \\\n  2\n",
			[]token.Token{ident, token.Assign, integer, token.Add, integer,
				nl, eof}},
		{"comments and blank lines",
			"# comment\n\nx = 1  # trailing\n\n   # indented comment\ny\n",
			[]token.Token{ident, token.Assign, integer, nl, ident, nl, eof}},
		{"tabs expand to multiples of eight", "if x:\n\ty\n        z\n",
			[]token.Token{token.If, ident, token.Colon, nl,
				indent, ident, nl, ident, nl, dedent, eof}},
		{"crlf", "x = 1\r\ny = 2\r\n",
			[]token.Token{ident, token.Assign, integer, nl,
				ident, token.Assign, integer, nl, eof}},
		{"semicolons", "a; b;\n",
			[]token.Token{ident, token.Semicolon, ident, token.Semicolon,
				nl, eof}},
		{"operators", "a //= b ** -c != d\n",
			[]token.Token{ident, token.FloorQuoAssign, ident, token.Pow,
				token.Sub, ident, token.NotEqual, ident, nl, eof}},
		{"all operators",
			"+ - * / // % ** += -= *= /= //= %= **= == != < <= > >= = , : ;",
			[]token.Token{token.Add, token.Sub, token.Mul, token.Quo,
				token.FloorQuo, token.Rem, token.Pow, token.AddAssign,
				token.SubAssign, token.MulAssign, token.QuoAssign,
				token.FloorQuoAssign, token.RemAssign, token.PowAssign,
				token.Equal, token.NotEqual, token.Less, token.LessEq,
				token.Greater, token.GreaterEq, token.Assign, token.Comma,
				token.Colon, token.Semicolon, nl, eof}},
		{"keywords", "def f(): return None if True else False\n",
			[]token.Token{token.Def, ident, token.LParen, token.RParen,
				token.Colon, token.Return, token.None, token.If, token.True,
				token.Else, token.False, nl, eof}},
		{"unicode identifier", "café = 1\n",
			[]token.Token{ident, token.Assign, integer, nl, eof}},
	}
	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			lexemes, err := scanAll(tC.input)
			require.NoError(t, err)
			require.Equal(t, tC.expect, kinds(lexemes))
		})
	}
}

func TestScannerNumbers(t *testing.T) {
	valid := map[string]token.Token{
		"0":        token.Int,
		"00":       token.Int,
		"42":       token.Int,
		"1_000":    token.Int,
		"0x1F":     token.Int,
		"0X_ff":    token.Int,
		"0o17":     token.Int,
		"0b101":    token.Int,
		"1.5":      token.Float,
		".5":       token.Float,
		"1.":       token.Float,
		"1e10":     token.Float,
		"2.5E-3":   token.Float,
		"007.5":    token.Float,
		"1_0.0_1":  token.Float,
		"1e+5":     token.Float,
		"12.5e001": token.Float,
		"9223372036854775807": token.Int,
	}
	for input, tok := range valid {
		lexemes, err := scanAll(input)
		require.NoError(t, err, input)
		require.Equal(t, tok, lexemes[0].Token, input)
		require.Equal(t, input, lexemes[0].Literal)
	}

	invalid := []string{
		"1e",
		"1e+",
		"0x",
		"0b102",
		"0o8",
		"12abc",
		"1__0",
		"1_",
		"007",
		"9223372036854775808",
		"1.5x",
	}
	for _, input := range invalid {
		_, err := scanAll(input)
		var lexErr *LexError
		require.True(t, errors.As(err, &lexErr), input)
		require.Equal(t, 1, lexErr.Pos.Line)
		require.Equal(t, 1, lexErr.Pos.Column)
	}
}

func TestScannerStrings(t *testing.T) {
	testCases := []struct {
		literal string
		value   string
	}{
		{`'abc'`, "abc"},
		{`"abc"`, "abc"},
		{`"it's"`, "it's"},
		{`'say "hi"'`, `say "hi"`},
		{`'a\nb\tc'`, "a\nb\tc"},
		{`'\\'`, `\`},
		{`'\''`, `'`},
		{`"\""`, `"`},
		{`'\x41\u00e9\U0001F600'`, "Aé😀"},
		{`'\0'`, "\x00"},
		{`'\101'`, "A"},
		{`'\q'`, `\q`},
		{`''`, ""},
	}
	for _, tC := range testCases {
		lexemes, err := scanAll(tC.literal)
		require.NoError(t, err, tC.literal)
		require.Equal(t, token.String, lexemes[0].Token)
		require.Equal(t, tC.literal, lexemes[0].Literal)
		v, err := Unquote(lexemes[0].Literal)
		require.NoError(t, err)
		require.Equal(t, tC.value, v)
	}

	lexemes, err := scanAll("s = 'a\\\nb'\n")
	require.NoError(t, err)
	v, err := Unquote(lexemes[2].Literal)
	require.NoError(t, err)
	require.Equal(t, "ab", v)
}

func TestScannerErrors(t *testing.T) {
	testCases := []struct {
		input  string
		msg    string
		line   int
		column int
	}{
		{"if x:\n    y\n  z\n",
			"unindent does not match any outer indentation level", 3, 3},
		{`s = "abc`, "unterminated string literal", 1, 5},
		{"s = 'abc\n'", "unterminated string literal", 1, 5},
		{"x = 1 $ 2", "invalid character U+0024 '$'", 1, 7},
		{"x = a ! b", "invalid character '!'", 1, 7},
		{"x = a \\ b", "unexpected character after line continuation character", 1, 7},
		{"x = '\\x4'", "truncated \\x escape", 1, 5},
		{"x = 1\ny = 0b2\n", "invalid binary literal", 2, 5},
	}
	for _, tC := range testCases {
		t.Run(tC.input, func(t *testing.T) {
			_, err := scanAll(tC.input)
			var lexErr *LexError
			require.True(t, errors.As(err, &lexErr), "%v", err)
			require.Equal(t, tC.msg, lexErr.Msg)
			require.Equal(t, tC.line, lexErr.Pos.Line)
			require.Equal(t, tC.column, lexErr.Pos.Column)
			require.Contains(t, lexErr.Error(), "test:")
		})
	}
}

func TestScannerPositions(t *testing.T) {
	lexemes, err := scanAll("x = 1\n  \nfoo(\n 'a')\n")
	require.NoError(t, err)

	type pos struct{ line, col int }
	expected := []pos{{1, 1}, {1, 3}, {1, 5}, {1, 6}, {3, 1}, {3, 4}, {4, 2}, {4, 5}, {4, 6}}
	require.GreaterOrEqual(t, len(lexemes), len(expected))
	for i, e := range expected {
		require.Equal(t, e.line, lexemes[i].Pos.Line, lexemes[i].String())
		require.Equal(t, e.col, lexemes[i].Pos.Column, lexemes[i].String())
	}
}

func TestTokensRestartable(t *testing.T) {
	src := []byte("for i in range(3):\n    print(i)\n")
	file := NewFileSet().AddFile("test", -1, len(src))
	seq := Tokens(file, src)

	collect := func() []Lexeme {
		var out []Lexeme
		for lex, err := range seq {
			require.NoError(t, err)
			out = append(out, lex)
		}
		return out
	}
	first := collect()
	second := collect()
	require.Equal(t, first, second)
	require.Equal(t, token.EOF, first[len(first)-1].Token)

	var count int
	for range seq {
		count++
		if count == 2 {
			break
		}
	}
	require.Equal(t, 2, count)
}
