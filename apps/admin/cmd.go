package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/shulehub/shule/core/promotion"
	"github.com/shulehub/shule/core/school"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db        *sqlx.DB
	out       io.Writer
	schoolSvc *school.Service
	promoSvc  *promotion.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate up|down|status|version - run database migrations")
	fmt.Fprintln(cli.out, "  promote -school ID -from ID -to ID [options] - run an academic-year rollover")
	fmt.Fprintln(cli.out, "  flipyear -school ID -year ID - mark an academic year as current")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	promoteCmd := flag.NewFlagSet("promote", flag.ExitOnError)
	promoteSchool := promoteCmd.String("school", "", "The school ID.")
	promoteFrom := promoteCmd.String("from", "", "The source academic year ID.")
	promoteTo := promoteCmd.String("to", "", "The target academic year ID.")
	promoteType := promoteCmd.String("type", string(promotion.TypeAutomatic), "Promotion mode: automatic, manual or bulk.")
	promoteActor := promoteCmd.String("actor", "admin-cli", "Recorded on the audit log.")
	promoteRetain := promoteCmd.String("retain", "", "Comma-separated student IDs to retain in their grade.")
	promoteGraduate := promoteCmd.String("graduate", "", "Comma-separated student IDs to graduate.")
	promoteLeave := promoteCmd.String("leave", "", "Comma-separated student IDs who left the school.")
	promoteYes := promoteCmd.Bool("yes", false, "Skip the confirmation prompt.")

	flipYearCmd := flag.NewFlagSet("flipyear", flag.ExitOnError)
	flipYearSchool := flipYearCmd.String("school", "", "The school ID.")
	flipYearYear := flipYearCmd.String("year", "", "The academic year ID to mark current.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)
	case "promote":
		if err := promoteCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *promoteSchool == "" || *promoteFrom == "" || *promoteTo == "" {
			promoteCmd.Usage()
			return errHelp
		}
		return cli.promote(promoteOptions{
			school:   *promoteSchool,
			from:     *promoteFrom,
			to:       *promoteTo,
			mode:     *promoteType,
			actor:    *promoteActor,
			retain:   *promoteRetain,
			graduate: *promoteGraduate,
			leave:    *promoteLeave,
			yes:      *promoteYes,
		})
	case "flipyear":
		if err := flipYearCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *flipYearSchool == "" || *flipYearYear == "" {
			flipYearCmd.Usage()
			return errHelp
		}
		return cli.flipYear(*flipYearSchool, *flipYearYear)
	default:
		cli.printUsage()
		return errHelp
	}
}
