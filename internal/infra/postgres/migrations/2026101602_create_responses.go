package migrations

import _ "embed"

//go:embed 0002_create_responses.sql
var createResponsesSQL string

func init() {
	Migrations.MustRegister(exec(createResponsesSQL), exec(`DROP TABLE IF EXISTS responses`))
}
