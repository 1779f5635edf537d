package jobs

import "github.com/labstack/echo/v4"

type Handler interface {
	Upload() echo.HandlerFunc
	Progress() echo.HandlerFunc
	SingleResult() echo.HandlerFunc
	Manifest() echo.HandlerFunc
	Topology() echo.HandlerFunc
	Frame() echo.HandlerFunc
	ListFiles() echo.HandlerFunc

	ListJobs() echo.HandlerFunc
	GetJobByID() echo.HandlerFunc
	LiveStatus() echo.HandlerFunc
}
