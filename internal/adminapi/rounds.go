package adminapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/internal/webserver"
	"go.uber.org/zap"
)

// registerRoundRoutes registers evaluation round API routes
func registerRoundRoutes() {
	webserver.ApiGET("/dns/status", GetRoundStatus)
	webserver.ApiGET("/dns/rounds/latest", ListLatestRoundResults)
	webserver.ApiGET("/dns/published", ListPublishedState)
	webserver.ApiPOST("/dns/rounds/run", TriggerRound)
}

// GetRoundStatus returns the most recent in-memory round report
// @Summary get the latest evaluation round report
// @Tags Rounds
// @Success 200 {object} app.RoundReport
// @Router /api/v1/dns/status [get]
func GetRoundStatus(c echo.Context) error {
	report := GetAppContext(c).LastRound()
	if report == nil {
		return fail(c, http.StatusNotFound, "NO_ROUND", "No evaluation round has completed yet", nil)
	}
	return ok(c, report)
}

// ListLatestRoundResults returns the persisted per-line results of the most
// recent round
func ListLatestRoundResults(c echo.Context) error {
	db := GetDB(c)

	var latest time.Time
	row := db.Model(&domain.DnsRoundResult{}).Select("MAX(round_ts)").Row()
	if err := row.Scan(&latest); err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "No round results recorded", nil)
	}

	var results []domain.DnsRoundResult
	if err := db.Where("round_ts = ?", latest).Order("line").Find(&results).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query round results", err.Error())
	}
	return ok(c, results)
}

// ListPublishedState returns the per-line snapshot of live DNS records
func ListPublishedState(c echo.Context) error {
	var states []domain.DnsPublishedState
	db := GetDB(c)

	if line := strings.TrimSpace(c.QueryParam("line")); line != "" {
		db = db.Where("line = ?", strings.ToUpper(line))
	}
	if err := db.Order("line").Find(&states).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query published state", err.Error())
	}
	return ok(c, states)
}

// TriggerRound starts an evaluation round in the background
// @Summary trigger an evaluation round immediately
// @Tags Rounds
// @Success 202
// @Router /api/v1/dns/rounds/run [post]
func TriggerRound(c echo.Context) error {
	appCtx := GetAppContext(c)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := appCtx.RunRoundNow(ctx); err != nil {
			zap.L().Error("triggered round failed", zap.Error(err))
		}
	}()
	return c.NoContent(http.StatusAccepted)
}
