package sqlstore

import (
	"strings"

	"github.com/platinummonkey/fieldaudit/pkg/audit"
)

// searchColumns are matched by Criteria.Search
var searchColumns = []string{"actor_email", "actor_name", "description", "entity_id"}

// whereBuilder accumulates conditions and bind arguments
type whereBuilder struct {
	dialect Dialect
	conds   []string
	args    []interface{}
}

func (b *whereBuilder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return b.dialect.placeholder(len(b.args))
}

func (b *whereBuilder) eq(column string, v interface{}) {
	b.conds = append(b.conds, column+" = "+b.bind(v))
}

// buildWhere compiles c into a WHERE clause. Same field semantics as
// audit.Criteria.Matches.
func buildWhere(d Dialect, c audit.Criteria) (string, []interface{}) {
	b := &whereBuilder{dialect: d}

	if c.ActorID != "" {
		b.eq("actor_id", c.ActorID)
	}
	if c.Action != "" {
		b.eq("action", string(c.Action))
	}
	if c.EntityType != "" {
		b.eq("entity_type", string(c.EntityType))
	}
	if c.EntityID != "" {
		b.eq("entity_id", c.EntityID)
	}
	if c.Severity != "" {
		b.eq("severity", string(c.Severity))
	}
	if c.From != nil {
		b.conds = append(b.conds, "occurred_at >= "+b.bind(*c.From))
	}
	if c.To != nil {
		b.conds = append(b.conds, "occurred_at <= "+b.bind(*c.To))
	}
	if c.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(c.Search)) + "%"
		ors := make([]string, 0, len(searchColumns))
		for _, col := range searchColumns {
			ors = append(ors, d.lower()+"("+col+") LIKE "+b.bind(pattern)+` ESCAPE '\'`)
		}
		b.conds = append(b.conds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(b.conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(b.conds, " AND "), b.args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
