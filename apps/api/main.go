package main

import (
	"fmt"
	"log"
	"os"

	echoapi "github.com/shulehub/shule/api/echo"
	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/promotion"
	"github.com/shulehub/shule/core/school"
	logsvc "github.com/shulehub/shule/services/logger"
	"github.com/shulehub/shule/storage/database"
	sqlxrepos "github.com/shulehub/shule/storage/database/sqlx"
)

func main() {
	conf := core.LoadConfig()
	std := log.New(os.Stdout, fmt.Sprintf("%s: ", conf.AppName), log.LstdFlags|log.Lshortfile)

	var logger core.Logger
	if conf.Debug || conf.TestMode {
		logger = core.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
		logger.Enable(true)
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		std.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	schoolRepo := sqlxrepos.NewSchoolRepository(db)
	promoRepo := sqlxrepos.NewPromotionRepository(db)
	schoolSvc := school.NewService(schoolRepo)
	promoSvc := promotion.NewService(logger, schoolRepo, promoRepo)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Addr:         conf.Server.Addr,
			Debug:        conf.Debug,
			TestMode:     conf.TestMode,
			Logger:       logger,
			SchoolSvc:    schoolSvc,
			PromotionSvc: promoSvc,
		},
	)
	app.Start()
}
