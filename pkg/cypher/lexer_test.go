package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lex(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := newLexer(src).tokenize()
	require.NoError(t, err)
	return toks
}

func TestLexBasicTokens(t *testing.T) {
	toks := lex(t, "MATCH (n:Person) RETURN n.name")
	kinds := make([]TokenKind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.Kind
	}
	assert.Equal(t, []TokenKind{
		TokenIdent, TokenLParen, TokenIdent, TokenColon, TokenIdent, TokenRParen,
		TokenIdent, TokenIdent, TokenDot, TokenIdent, TokenEOF,
	}, kinds)
	assert.Equal(t, "MATCH", toks[0].Upper)
	assert.Equal(t, "n", toks[2].Text)
}

func TestLexNumbers(t *testing.T) {
	toks := lex(t, "1 3.5 2e3 1..4")
	assert.Equal(t, TokenInt, toks[0].Kind)
	assert.Equal(t, TokenFloat, toks[1].Kind)
	assert.Equal(t, TokenFloat, toks[2].Kind)
	// the range dots must not swallow the integers
	assert.Equal(t, TokenInt, toks[3].Kind)
	assert.Equal(t, TokenRange, toks[4].Kind)
	assert.Equal(t, TokenInt, toks[5].Kind)
}

func TestLexStringsAndEscapes(t *testing.T) {
	toks := lex(t, `'it''s' "a\nb" 'A'`)
	assert.Equal(t, "it", toks[0].Text)
	assert.Equal(t, "s", toks[1].Text)
	assert.Equal(t, "a\nb", toks[2].Text)
	assert.Equal(t, "A", toks[3].Text)

	_, err := newLexer("'unterminated").tokenize()
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
}

func TestLexBacktickIdent(t *testing.T) {
	toks := lex(t, "MATCH (n:`Weird Label`)")
	assert.Equal(t, "Weird Label", toks[4].Text)
	// quoted identifiers never match keywords
	assert.False(t, toks[4].IsKeyword("WEIRD LABEL"))
}

func TestLexOperatorsAndParams(t *testing.T) {
	toks := lex(t, "<= >= <> =~ += .. $name")
	assert.Equal(t, TokenLte, toks[0].Kind)
	assert.Equal(t, TokenGte, toks[1].Kind)
	assert.Equal(t, TokenNeq, toks[2].Kind)
	assert.Equal(t, TokenRegexMatch, toks[3].Kind)
	assert.Equal(t, TokenPlusEq, toks[4].Kind)
	assert.Equal(t, TokenRange, toks[5].Kind)
	assert.Equal(t, TokenParam, toks[6].Kind)
	assert.Equal(t, "name", toks[6].Text)
}

func TestLexComments(t *testing.T) {
	toks := lex(t, "RETURN 1 // trailing\n/* block\ncomment */ + 2")
	assert.Equal(t, 5, len(toks))
	assert.Equal(t, TokenPlus, toks[2].Kind)
}

func TestLexPositions(t *testing.T) {
	toks := lex(t, "RETURN\n  42")
	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 2, toks[1].Line)
	assert.Equal(t, 3, toks[1].Col)
}

func TestLexUnicodeIdent(t *testing.T) {
	toks := lex(t, "MATCH (straße)")
	assert.Equal(t, "straße", toks[2].Text)
}
