package query

import (
	"fmt"
	"strings"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// WhereSQL renders the predicate with placeholders numbered from start.
// It returns an empty clause when the plan has no conditions.
func (p Plan) WhereSQL(start int) (string, []any) {
	if len(p.Conditions) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(p.Conditions))
	args := make([]any, 0, len(p.Conditions))
	n := start
	for _, c := range p.Conditions {
		switch c.Op {
		case OpIsNull:
			parts = append(parts, c.Column+" IS NULL")
		case OpContains:
			parts = append(parts, fmt.Sprintf("%s ILIKE $%d", c.Column, n))
			args = append(args, "%"+likeEscaper.Replace(c.Value)+"%")
			n++
		default:
			parts = append(parts, fmt.Sprintf("%s = $%d", c.Column, n))
			args = append(args, c.Value)
			n++
		}
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}

// OrderSQL renders the ORDER BY clause.
func (p Plan) OrderSQL() string {
	if len(p.Order) == 0 {
		return ""
	}
	terms := make([]string, len(p.Order))
	for i, o := range p.Order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		terms[i] = o.Column + " " + dir
	}
	return "ORDER BY " + strings.Join(terms, ", ")
}

// SelectSQL renders the paged query for the plan.
func (p Plan) SelectSQL(table, columns string) (string, []any) {
	where, args := p.WhereSQL(1)
	n := len(args) + 1

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, table)
	if where != "" {
		b.WriteString(" " + where)
	}
	if order := p.OrderSQL(); order != "" {
		b.WriteString(" " + order)
	}
	fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", n, n+1)
	args = append(args, p.Limit, p.Offset)
	return b.String(), args
}

// CountSQL renders the total-count query. It shares the predicate with
// SelectSQL and ignores ordering and the pagination window.
func (p Plan) CountSQL(table string) (string, []any) {
	where, args := p.WhereSQL(1)
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " " + where
	}
	return query, args
}
