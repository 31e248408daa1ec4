package main

import "github.com/shulehub/shule/storage/database"

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(command string, args ...string) error {
	return migrateFunc(cli.db.DB, command, args...)
}
