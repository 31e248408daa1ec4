package echoapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/school"
)

type schoolApi struct {
	svc *school.Service
}

func registerSchoolAPI(g *echo.Group, svc *school.Service) {
	api := schoolApi{svc: svc}

	yg := g.Group("/years")
	yg.GET("", api.queryYears)
	yg.POST("", api.createYear)
	yg.PUT("/:id/current", api.setCurrentYear)
}

// uuidQueryParam parses a required UUID query parameter.
func uuidQueryParam(ctx echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.QueryParam(name))
	if err != nil {
		return uuid.Nil, core.NewValidationError(nil, core.FieldError{Field: name, Error: "a valid UUID is required"})
	}
	return id, nil
}

func uuidPathParam(ctx echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param(name))
	if err != nil {
		return uuid.Nil, errHttpNotFound
	}
	return id, nil
}

// Handlers

func (api *schoolApi) queryYears(ctx echo.Context) error {
	schoolID, err := uuidQueryParam(ctx, "school_id")
	if err != nil {
		return err
	}

	years, err := api.svc.Years(ctx.Request().Context(), schoolID)
	if err != nil {
		return errors.Wrap(err, "querying years")
	}
	return ctx.JSON(http.StatusOK, years)
}

func (api *schoolApi) createYear(ctx echo.Context) error {
	var data school.NewAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAcademicYear")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	year, err := api.svc.CreateYear(ctx.Request().Context(), data)
	if err != nil {
		if _, ok := errors.Cause(err).(*core.ValidationError); ok {
			return err
		}
		return errors.Wrap(err, "creating year")
	}
	return ctx.JSON(http.StatusCreated, year)
}

func (api *schoolApi) setCurrentYear(ctx echo.Context) error {
	yearID, err := uuidPathParam(ctx, "id")
	if err != nil {
		return err
	}
	schoolID, err := uuidQueryParam(ctx, "school_id")
	if err != nil {
		return err
	}

	if err := api.svc.SetCurrentYear(ctx.Request().Context(), schoolID, yearID); err != nil {
		if errors.Cause(err) == school.ErrNotFound {
			return err
		}
		return errors.Wrap(err, "setting current year")
	}
	return ctx.NoContent(http.StatusNoContent)
}
