package main

import (
	"fmt"
	"log"
	"os"

	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/promotion"
	"github.com/shulehub/shule/core/school"
	"github.com/shulehub/shule/storage/database"
	sqlxrepos "github.com/shulehub/shule/storage/database/sqlx"
)

func main() {
	conf := core.LoadConfig()
	std := log.New(os.Stdout, fmt.Sprintf("%s-admin: ", conf.AppName), log.LstdFlags)
	logger := core.NewStdLogger(std)

	if err := database.CreateIfNotExist(conf); err != nil {
		std.Fatal(err)
	}
	db, err := database.Open(conf)
	if err != nil {
		std.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	schoolRepo := sqlxrepos.NewSchoolRepository(db)
	cli := &commandLine{
		db:        db,
		out:       os.Stdout,
		schoolSvc: school.NewService(schoolRepo),
		promoSvc:  promotion.NewService(logger, schoolRepo, sqlxrepos.NewPromotionRepository(db)),
	}

	if err := cli.run(os.Args); err != nil {
		if err == errHelp {
			os.Exit(2)
		}
		std.Fatal(err)
	}
}
