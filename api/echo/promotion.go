package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shulehub/shule/core"
	"github.com/shulehub/shule/core/promotion"
)

type promotionApi struct {
	svc *promotion.Service
}

func registerPromotionAPI(g *echo.Group, svc *promotion.Service) {
	api := promotionApi{svc: svc}

	pg := g.Group("/promotions")
	pg.POST("/validate", api.validate)
	pg.POST("/preview", api.preview)
	pg.POST("/execute", api.execute)
	pg.GET("/logs", api.queryLogs)
}

type validateResponse struct {
	Valid  bool              `json:"valid"`
	Errors []core.FieldError `json:"errors"`
}

type previewResponse struct {
	Previews []promotion.Preview `json:"previews"`
}

// Handlers

func (api *promotionApi) validate(ctx echo.Context) error {
	var data promotion.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to promotion.Request")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	fields, err := api.svc.ValidatePrerequisites(ctx.Request().Context(), data.SchoolID, data.FromYearID, data.ToYearID)
	if err != nil {
		return errors.Wrap(err, "validating prerequisites")
	}
	if fields == nil {
		fields = make([]core.FieldError, 0)
	}
	return ctx.JSON(http.StatusOK, validateResponse{Valid: len(fields) == 0, Errors: fields})
}

func (api *promotionApi) preview(ctx echo.Context) error {
	var data promotion.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to promotion.Request")
	}

	previews, err := api.svc.Preview(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, previewResponse{Previews: previews})
}

func (api *promotionApi) execute(ctx echo.Context) error {
	var data promotion.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to promotion.Request")
	}

	result, err := api.svc.Execute(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *promotionApi) queryLogs(ctx echo.Context) error {
	schoolID, err := uuidQueryParam(ctx, "school_id")
	if err != nil {
		return err
	}

	logs, err := api.svc.Logs(ctx.Request().Context(), schoolID)
	if err != nil {
		return errors.Wrap(err, "querying promotion logs")
	}
	return ctx.JSON(http.StatusOK, logs)
}
