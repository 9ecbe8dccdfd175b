package database

import (
	"fmt"
	"strings"

	"github.com/helixml/marginalia/domain/repository"
	"gorm.io/gorm"
)

// ApplyOptions builds a repository.Query from options and applies it to a GORM session.
func ApplyOptions(db *gorm.DB, options ...repository.Option) *gorm.DB {
	q := repository.Build(options...)

	db = applyConditions(db, q)

	for _, ord := range q.Orders() {
		dir := "ASC"
		if !ord.Ascending() {
			dir = "DESC"
		}
		db = db.Order(fmt.Sprintf("%s %s", ord.Field(), dir))
	}

	if q.LimitValue() > 0 {
		db = db.Limit(q.LimitValue())
	}

	if q.OffsetValue() > 0 {
		db = db.Offset(q.OffsetValue())
	}

	return db
}

// ApplyConditions applies only WHERE conditions (no limit/offset/order) for COUNT queries.
func ApplyConditions(db *gorm.DB, options ...repository.Option) *gorm.DB {
	return applyConditions(db, repository.Build(options...))
}

func applyConditions(db *gorm.DB, q repository.Query) *gorm.DB {
	for _, cond := range q.Conditions() {
		switch cond.Operator() {
		case repository.OpIn:
			db = db.Where(fmt.Sprintf("%s IN ?", cond.Field()), cond.Value())
		case repository.OpContains:
			clauses := make([]string, 0, len(cond.Fields()))
			args := make([]any, 0, len(cond.Fields()))
			pattern := "%" + escapeLike(strings.ToLower(fmt.Sprint(cond.Value()))) + "%"
			for _, f := range cond.Fields() {
				clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '\\'", f))
				args = append(args, pattern)
			}
			db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
		default:
			db = db.Where(fmt.Sprintf("%s = ?", cond.Field()), cond.Value())
		}
	}
	return db
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
