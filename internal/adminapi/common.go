package adminapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/toughdns/internal/app"
	"github.com/talkincode/toughdns/internal/webserver"
	"gorm.io/gorm"
)

// Register wires every admin API route. Call once after webserver.Init.
func Register() {
	registerRoundRoutes()
	registerHistoryRoutes()
}

// GetAppContext returns the application context bound to the request.
func GetAppContext(c echo.Context) app.AppContext {
	return webserver.GetAppContext(c)
}

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB()
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

// ListResponse is the paged collection payload
type ListResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(200, data)
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, apiError{Code: code, Message: message, Detail: detail})
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return c.JSON(200, ListResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.QueryParam("perPage"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize
}
