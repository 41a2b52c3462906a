package dao

import "strings"

// clauseBuilder assembles a dynamic WHERE clause. Each optional filter
// appends its predicate fragment and its bound values together as one unit,
// so parameter order can never drift from predicate order.
type clauseBuilder struct {
	conds []string
	args  []interface{}
}

// add appends a predicate fragment together with its bound values
func (b *clauseBuilder) add(cond string, args ...interface{}) {
	b.conds = append(b.conds, cond)
	b.args = append(b.args, args...)
}

// addIn appends an IN predicate over the given values; a no-op when the
// value list is empty (absent filters are omitted from the query entirely)
func (b *clauseBuilder) addIn(column string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	cond := column + " IN (" + placeholders + ")"
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	b.add(cond, args...)
}

// where returns the assembled WHERE clause (empty string when no filter was
// supplied) and the bound values in predicate order
func (b *clauseBuilder) where() (string, []interface{}) {
	if len(b.conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(b.conds, " AND "), b.args
}
