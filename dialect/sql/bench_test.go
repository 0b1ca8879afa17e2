package sql_test

import (
	"context"
	"testing"

	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/dialect/sql/mysql"
	"github.com/syssam/strata/dialect/sql/postgres"
	"github.com/syssam/strata/dialect/sql/sqlite"
	"github.com/syssam/strata/expr"
	"github.com/syssam/strata/schema"
)

var benchUsers = schema.NewDefinition("users").
	AddAutoIncrementID().
	AddField("name", schema.String(64)).
	AddField("age", schema.Integer(schema.Tiny|schema.Unsigned, schema.Nullable())).
	AddField("role", schema.Enum("role", []string{"admin", "member"}, schema.Default("member"))).
	AddTimestamps().
	MustBuild()

func benchTables() map[string]*sql.Table {
	tables := make(map[string]*sql.Table)
	for _, a := range []sql.Adapter{mysql.New(), postgres.New(), sqlite.New()} {
		tables[a.Dialect()] = sql.NewDatabase(nil, a).Define("users", benchUsers)
	}
	return tables
}

func BenchmarkReadQuery_Simple(b *testing.B) {
	for d, tbl := range benchTables() {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				tbl.ReadQuery(tbl.Select().Where("id = ?", 1).Read())
			}
		})
	}
}

func BenchmarkReadQuery_Complex(b *testing.B) {
	for d, tbl := range benchTables() {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				r := tbl.Select().
					Where("(age >= ? and role = ?) or name like ?", 18, "admin", "a%").
					AndWhere("id in ?()", []int{1, 2, 3, 4, 5}).
					OrderByDescending("created_at").
					Limit(20).
					Offset(40).
					Select("id", "name", "age")
				tbl.ReadQuery(r)
			}
		})
	}
}

func BenchmarkCountQuery_Grouped(b *testing.B) {
	for d, tbl := range benchTables() {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				tbl.CountQuery(tbl.Select().Where("age is not null").GroupBy("role"))
			}
		})
	}
}

func BenchmarkUpdateQuery(b *testing.B) {
	ctx := context.Background()
	for d, tbl := range benchTables() {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				u := tbl.Select().Where("name = ?", "bob").Set("age", 30).Set("role", "admin")
				tbl.UpdateQuery(ctx, u)
			}
		})
	}
}

func BenchmarkInsertQuery(b *testing.B) {
	r := expr.Record{"name": "Ariel", "age": 30, "created_at": "2009-11-10 23:00:00"}
	for d, tbl := range benchTables() {
		b.Run(d, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				tbl.InsertQuery(benchUsers, r, false)
			}
		})
	}
}

func BenchmarkPredicates_Simple(b *testing.B) {
	q := mysql.New()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		expr.Field[int]("age").GT(18).Render(q)
	}
}

func BenchmarkPredicates_Compound(b *testing.B) {
	q := postgres.New()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		expr.Or(
			expr.And(expr.Field[int]("age").GTE(18), expr.Text("name").HasPrefix("a")),
			expr.Field[string]("role").In("admin", "owner"),
			expr.Field[int]("age").IsNull(),
		).Render(q)
	}
}

func BenchmarkParse(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		expr.Parse(`not (age < 18) and (name like "a%" or role in ?())`, []string{"admin", "owner"})
	}
}
