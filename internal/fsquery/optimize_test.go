package fsquery

import "testing"

func TestOptimizeFlattensNestedAnd(t *testing.T) {
	e := &And{Children: []Expr{
		&Extension{Exts: []string{"go"}},
		&And{Children: []Expr{
			&Text{Literal: "foo"},
			&Content{Literal: "bar"},
		}},
	}}
	got := Optimize(e)
	and, ok := got.(*And)
	if !ok {
		t.Fatalf("expected *And, got %T", got)
	}
	if len(and.Children) != 3 {
		t.Fatalf("expected flattened 3 children, got %d: %+v", len(and.Children), and.Children)
	}
}

func TestOptimizeOrdersAndCheapFirst(t *testing.T) {
	e := &And{Children: []Expr{
		&Content{Literal: "needle"},
		&Extension{Exts: []string{"go"}},
	}}
	got := Optimize(e).(*And)
	if _, ok := got.Children[0].(*Extension); !ok {
		t.Errorf("expected cheap Extension filter first, got %T", got.Children[0])
	}
	if _, ok := got.Children[len(got.Children)-1].(*Content); !ok {
		t.Errorf("expected expensive Content filter last, got %T", got.Children[len(got.Children)-1])
	}
}

func TestOptimizeFlattensNestedOr(t *testing.T) {
	e := &Or{Children: []Expr{
		&Extension{Exts: []string{"go"}},
		&Or{Children: []Expr{
			&Extension{Exts: []string{"rs"}},
			&Extension{Exts: []string{"py"}},
		}},
	}}
	got := Optimize(e).(*Or)
	if len(got.Children) != 3 {
		t.Fatalf("expected flattened 3 children, got %d", len(got.Children))
	}
}
