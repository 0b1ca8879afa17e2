// Package migrate brings existing tables in line with their definitions.
//
// A Migrator introspects every table through the Database, diffs the live
// definition against the desired one and validates the resulting changes
// before anything runs. Destructive changes are refused unless allowed:
//
//	m := migrate.New(db, migrate.AllowDropKey())
//	plan, err := m.Plan(ctx, users, posts)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(plan)
//	if err := m.Migrate(ctx, users, posts); err != nil {
//	    return err
//	}
//
// Tables that have no definition are left alone.
package migrate
