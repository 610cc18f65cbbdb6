package migrations

import _ "embed"

//go:embed 0003_create_questions.sql
var createQuestionsSQL string

func init() {
	Migrations.MustRegister(exec(createQuestionsSQL), exec(`DROP TABLE IF EXISTS questions`))
}
