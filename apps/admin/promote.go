package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core/promotion"
)

var confirmReader = bufio.NewReader(os.Stdin) // mockable

type promoteOptions struct {
	school   string
	from     string
	to       string
	mode     string
	actor    string
	retain   string
	graduate string
	leave    string
	yes      bool
}

func parseIDList(s string) ([]uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing student ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (cli *commandLine) promote(opts promoteOptions) error {
	schoolID, err := uuid.Parse(opts.school)
	if err != nil {
		return errors.Wrap(err, "parsing school ID")
	}
	fromID, err := uuid.Parse(opts.from)
	if err != nil {
		return errors.Wrap(err, "parsing source year ID")
	}
	toID, err := uuid.Parse(opts.to)
	if err != nil {
		return errors.Wrap(err, "parsing target year ID")
	}
	retainIDs, err := parseIDList(opts.retain)
	if err != nil {
		return err
	}
	graduateIDs, err := parseIDList(opts.graduate)
	if err != nil {
		return err
	}
	leaveIDs, err := parseIDList(opts.leave)
	if err != nil {
		return err
	}

	req := promotion.Request{
		SchoolID:    schoolID,
		FromYearID:  fromID,
		ToYearID:    toID,
		Type:        promotion.Type(opts.mode),
		Actor:       opts.actor,
		RetainIDs:   retainIDs,
		GraduateIDs: graduateIDs,
		LeaveIDs:    leaveIDs,
	}

	ctx := context.Background()
	previews, err := cli.promoSvc.Preview(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "Previewing rollover of %d students:\n", len(previews))
	for _, p := range previews {
		dest := "-"
		if p.ToGradeName.Valid {
			dest = p.ToGradeName.String
		}
		fmt.Fprintf(cli.out, "  %-20s %-12s -> %-12s %s\n", p.StudentName, p.FromGradeName, dest, p.Action)
		for _, w := range p.Warnings {
			fmt.Fprintf(cli.out, "    warning: %s\n", w)
		}
	}

	if !opts.yes {
		fmt.Fprint(cli.out, "Proceed? [y/N]: ")
		answer, err := confirmReader.ReadString('\n')
		if err != nil {
			return err
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(cli.out, "Aborted.")
			return nil
		}
	}

	result, err := cli.promoSvc.ExecutePreviews(ctx, req, previews)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Done: %d promoted, %d retained, %d graduated, %d left (of %d considered)\n",
		result.Counts.Promoted, result.Counts.Retained, result.Counts.Graduated, result.Counts.Left, result.Counts.Total)
	for _, w := range result.Warnings {
		fmt.Fprintf(cli.out, "warning: %s\n", w)
	}
	return nil
}

func (cli *commandLine) flipYear(schoolArg, yearArg string) error {
	schoolID, err := uuid.Parse(schoolArg)
	if err != nil {
		return errors.Wrap(err, "parsing school ID")
	}
	yearID, err := uuid.Parse(yearArg)
	if err != nil {
		return errors.Wrap(err, "parsing year ID")
	}
	if err := cli.schoolSvc.SetCurrentYear(context.Background(), schoolID, yearID); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Current academic year updated.")
	return nil
}
