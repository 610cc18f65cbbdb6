package migrations

import _ "embed"

//go:embed 0001_create_users.sql
var createUsersSQL string

func init() {
	Migrations.MustRegister(exec(createUsersSQL), exec(`DROP TABLE IF EXISTS users`))
}
