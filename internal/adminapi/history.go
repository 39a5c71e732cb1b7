package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/internal/webserver"
)

// registerHistoryRoutes registers rolling-history API routes
func registerHistoryRoutes() {
	webserver.ApiGET("/dns/history", ListHistory)
	webserver.ApiGET("/dns/badips", ListBadIPs)
}

// ListHistory returns rolling history entries, filterable by ip/line/days
func ListHistory(c echo.Context) error {
	page, pageSize := parsePagination(c)
	db := GetDB(c).Model(&domain.DnsIPHistory{})

	if ip := strings.TrimSpace(c.QueryParam("ip")); ip != "" {
		db = db.Where("ip = ?", ip)
	}
	if line := strings.TrimSpace(c.QueryParam("line")); line != "" {
		db = db.Where("line = ?", strings.ToUpper(line))
	}
	if daysParam := strings.TrimSpace(c.QueryParam("days")); daysParam != "" {
		if days, err := strconv.Atoi(daysParam); err == nil && days > 0 {
			cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
			db = db.Where("day >= ?", cutoff)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query history", err.Error())
	}

	var entries []domain.DnsIPHistory
	if err := db.Order("day DESC, ip").Offset((page - 1) * pageSize).Limit(pageSize).Find(&entries).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query history", err.Error())
	}
	return paged(c, entries, total, page, pageSize)
}

// badIPRow is the aggregated failure ledger for one (ip, line) pair
type badIPRow struct {
	IP       string  `json:"ip"`
	Line     string  `json:"line"`
	Failed   int64   `json:"failed"`
	Total    int64   `json:"total"`
	FailRate float64 `json:"fail_rate"`
}

// ListBadIPs returns every (ip, line) pair currently flagged bad under the
// configured window and thresholds
func ListBadIPs(c echo.Context) error {
	appCtx := GetAppContext(c)
	hcfg := appCtx.Config().History
	cutoff := time.Now().AddDate(0, 0, -hcfg.MaxHistoryDays).Format("2006-01-02")

	var rows []badIPRow
	err := GetDB(c).Model(&domain.DnsIPHistory{}).
		Select("ip, line, SUM(CASE WHEN passed THEN 0 ELSE 1 END) AS failed, COUNT(*) AS total").
		Where("day >= ?", cutoff).
		Group("ip, line").
		Having("SUM(CASE WHEN passed THEN 0 ELSE 1 END) >= ?", hcfg.MinTestsForBadIP).
		Scan(&rows).Error
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query bad IPs", err.Error())
	}

	out := rows[:0]
	for _, r := range rows {
		if r.Total == 0 {
			continue
		}
		r.FailRate = float64(r.Failed) / float64(r.Total)
		if r.FailRate >= hcfg.BadIPThreshold {
			out = append(out, r)
		}
	}
	return ok(c, out)
}
