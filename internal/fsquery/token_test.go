package fsquery

import "testing"

func TestLexBasics(t *testing.T) {
	tokens := Lex(`foo AND bar OR -baz "quoted text" (a b)`)
	kinds := make([]TokenKind, 0, len(tokens))
	for _, tok := range tokens {
		kinds = append(kinds, tok.Kind)
	}
	want := []TokenKind{
		TokWord, TokAnd, TokWord, TokOr, TokNot, TokWord, TokQuoted,
		TokLParen, TokWord, TokWord, TokRParen, TokEOF,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(kinds), len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestLexOperatorShorthand(t *testing.T) {
	tokens := Lex(`a|b -c`)
	if tokens[1].Kind != TokOr {
		t.Errorf("expected | to lex as TokOr, got %v", tokens[1].Kind)
	}
	if tokens[3].Kind != TokNot {
		t.Errorf("expected - to lex as TokNot, got %v", tokens[3].Kind)
	}
}

func TestLexQuotedPreservesSpaces(t *testing.T) {
	tokens := Lex(`"two words"`)
	if tokens[0].Kind != TokQuoted || tokens[0].Value != "two words" {
		t.Fatalf("got %+v", tokens[0])
	}
}
