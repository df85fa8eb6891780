package fsquery

import "testing"

func TestParseImplicitAnd(t *testing.T) {
	q, err := Parse("foo bar")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	and, ok := q.Root.(*And)
	if !ok {
		t.Fatalf("expected *And, got %T", q.Root)
	}
	if len(and.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(and.Children))
	}
}

func TestParseOrPrecedenceOverAnd(t *testing.T) {
	q, err := Parse("foo bar OR baz")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	or, ok := q.Root.(*Or)
	if !ok {
		t.Fatalf("expected top-level *Or, got %T", q.Root)
	}
	if len(or.Children) != 2 {
		t.Fatalf("expected 2 Or branches, got %d", len(or.Children))
	}
	if _, ok := or.Children[0].(*And); !ok {
		t.Errorf("expected first Or branch to be *And (foo bar), got %T", or.Children[0])
	}
}

func TestParseNot(t *testing.T) {
	q, err := Parse("-secret")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := q.Root.(*Not); !ok {
		t.Fatalf("expected *Not, got %T", q.Root)
	}
}

func TestParseParens(t *testing.T) {
	q, err := Parse("(foo OR bar) baz")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	and, ok := q.Root.(*And)
	if !ok {
		t.Fatalf("expected *And, got %T", q.Root)
	}
	found := false
	for _, c := range and.Children {
		if _, ok := c.(*Or); ok {
			found = true
		}
	}
	if !found {
		t.Errorf("expected one And child to be the parenthesized Or, got %+v", and.Children)
	}
}

func TestParseExtFilter(t *testing.T) {
	q, err := Parse("ext:jpg,png")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ext, ok := q.Root.(*Extension)
	if !ok {
		t.Fatalf("expected *Extension, got %T", q.Root)
	}
	if len(ext.Exts) != 2 || ext.Exts[0] != "jpg" || ext.Exts[1] != "png" {
		t.Errorf("got %v", ext.Exts)
	}
}

func TestParseTypeCategory(t *testing.T) {
	q, err := Parse("type:picture")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := q.Root.(*Category); !ok {
		t.Fatalf("expected *Category, got %T", q.Root)
	}
}

func TestParseTypeFileFolder(t *testing.T) {
	q, err := Parse("type:folder")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	kf, ok := q.Root.(*KindFilter)
	if !ok || !kf.IsDir {
		t.Fatalf("expected KindFilter{IsDir:true}, got %+v", q.Root)
	}
}

func TestParseSizeFilter(t *testing.T) {
	q, err := Parse("size:>10MB")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	size, ok := q.Root.(*Size)
	if !ok {
		t.Fatalf("expected *Size, got %T", q.Root)
	}
	if size.Min != 10*1000*1000 {
		t.Errorf("got Min=%d", size.Min)
	}
}

func TestParseSizeRange(t *testing.T) {
	q, err := Parse("size:1mb..2mb")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	size, ok := q.Root.(*Size)
	if !ok {
		t.Fatalf("expected *Size, got %T", q.Root)
	}
	if size.Min == 0 || size.Max == 0 || size.Min >= size.Max {
		t.Errorf("got Min=%d Max=%d", size.Min, size.Max)
	}
}

func TestParseDateRelative(t *testing.T) {
	q, err := Parse("datecreated:<7d")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := q.Root.(*Date); !ok {
		t.Fatalf("expected *Date, got %T", q.Root)
	}
}

func TestParseDateModifiedField(t *testing.T) {
	q, err := Parse("date:modified:>2024-01-01")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, ok := q.Root.(*Date)
	if !ok {
		t.Fatalf("expected *Date, got %T", q.Root)
	}
	if d.Field != dateModified {
		t.Errorf("expected dateModified field, got %v", d.Field)
	}
}

func TestParseContentDeferred(t *testing.T) {
	q, err := Parse(`content:"hello world"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := q.Root.(*Content); !ok {
		t.Fatalf("expected *Content, got %T", q.Root)
	}
}

func TestParseUnknownCategoryErrors(t *testing.T) {
	_, err := Parse("type:nonsense")
	if err == nil {
		t.Fatalf("expected an error for an unknown category")
	}
}

func TestParseHighlightTerms(t *testing.T) {
	q, err := Parse(`foo "bar baz"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.Highlight) != 2 {
		t.Fatalf("expected 2 highlight terms, got %v", q.Highlight)
	}
}
