package fsquery

import "sort"

// Optimize flattens nested And→And and Or→Or, then reorders children: And
// children ascending by estimated cost so cheap name/text filters run
// before content and tag filters; Or children descending by estimated
// cost so the common case short-circuits sooner. The exact cost model is
// a monotonic heuristic, not a precise estimate — see DESIGN.md.
func Optimize(e Expr) Expr {
	switch n := e.(type) {
	case *And:
		flat := flattenAnd(n)
		for i, c := range flat {
			flat[i] = Optimize(c)
		}
		sort.SliceStable(flat, func(i, j int) bool { return costOf(flat[i]) < costOf(flat[j]) })
		if len(flat) == 1 {
			return flat[0]
		}
		return &And{Children: flat}
	case *Or:
		flat := flattenOr(n)
		for i, c := range flat {
			flat[i] = Optimize(c)
		}
		sort.SliceStable(flat, func(i, j int) bool { return costOf(flat[i]) > costOf(flat[j]) })
		if len(flat) == 1 {
			return flat[0]
		}
		return &Or{Children: flat}
	case *Not:
		n.Child = Optimize(n.Child)
		return n
	default:
		return e
	}
}

func flattenAnd(n *And) []Expr {
	var out []Expr
	for _, c := range n.Children {
		if child, ok := c.(*And); ok {
			out = append(out, flattenAnd(child)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func flattenOr(n *Or) []Expr {
	var out []Expr
	for _, c := range n.Children {
		if child, ok := c.(*Or); ok {
			out = append(out, flattenOr(child)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// costOf ranks an expression's evaluation cost, cheapest first. Content
// and Tag require an out-of-band filesystem read and rank highest; name
// and extension checks are a handful of string comparisons and rank
// lowest.
func costOf(e Expr) int {
	switch n := e.(type) {
	case *Extension, *Category:
		return 1
	case *KindFilter, *Parent, *Scope, *InFolder:
		return 2
	case *Text:
		return 3
	case *Size, *Date:
		return 4
	case *Not:
		return costOf(n.Child)
	case *And:
		return maxCost(n.Children)
	case *Or:
		return maxCost(n.Children)
	case *Content, *Tag:
		return 10
	default:
		return 5
	}
}

func maxCost(children []Expr) int {
	max := 0
	for _, c := range children {
		if cost := costOf(c); cost > max {
			max = cost
		}
	}
	return max
}
