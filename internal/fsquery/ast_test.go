package fsquery

import (
	"reflect"
	"sort"
	"testing"
)

type stubExpr struct {
	required []string
	result   bool
}

func (s *stubExpr) Eval(*NodeQueryContext, *[]Expr) bool { return s.result }
func (s *stubExpr) RequiredNameTerms() []string          { return s.required }

func TestAndRequiredNameTermsIntersects(t *testing.T) {
	and := &And{Children: []Expr{
		&stubExpr{required: []string{"foo", "bar"}},
		&stubExpr{required: []string{"foo"}},
	}}
	got := and.RequiredNameTerms()
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"foo"}) {
		t.Errorf("got %v", got)
	}
}

func TestOrRequiredNameTermsOnlyWhenAllBranchesAgree(t *testing.T) {
	or := &Or{Children: []Expr{
		&stubExpr{required: []string{"foo"}},
		&stubExpr{required: []string{"bar"}},
	}}
	if got := or.RequiredNameTerms(); len(got) != 0 {
		t.Errorf("expected no agreed terms, got %v", got)
	}

	agree := &Or{Children: []Expr{
		&stubExpr{required: []string{"foo", "baz"}},
		&stubExpr{required: []string{"foo"}},
	}}
	if got := agree.RequiredNameTerms(); !reflect.DeepEqual(got, []string{"foo"}) {
		t.Errorf("got %v", got)
	}
}

func TestNotHasNoRequiredNameTerms(t *testing.T) {
	not := &Not{Child: &stubExpr{required: []string{"foo"}}}
	if got := not.RequiredNameTerms(); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestSplitWildcardChunks(t *testing.T) {
	got := splitWildcardChunks("foo*bar*baz")
	want := []string{"foo", "bar", "baz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAndEvalShortCircuits(t *testing.T) {
	calls := 0
	countingFalse := &stubExprFn{fn: func() bool { calls++; return false }}
	countingTrue := &stubExprFn{fn: func() bool { calls++; return true }}
	and := &And{Children: []Expr{countingFalse, countingTrue}}
	if and.Eval(nil, nil) {
		t.Fatalf("expected And to evaluate false")
	}
	if calls != 1 {
		t.Errorf("expected short-circuit after 1 call, got %d", calls)
	}
}

type stubExprFn struct{ fn func() bool }

func (s *stubExprFn) Eval(*NodeQueryContext, *[]Expr) bool { return s.fn() }
func (s *stubExprFn) RequiredNameTerms() []string          { return nil }
