package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"rootcart/domain"
)

// getDashboardStats never fails on aggregation errors: degraded fields are
// listed and a total outage serves the last-known or zero snapshot.
func getDashboardStats(provider StatsProvider, logger *log.Logger, route string) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newDashboardRequestMetrics(logger, route)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		computeStart := time.Now()
		res := provider.Snapshot(c.Request().Context())
		metrics.ObserveCompute(time.Since(computeStart))
		metrics.SetDegraded(res.Degraded, res.Fallback)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, domain.StatsEnvelope{Success: true, Data: res.Snapshot, Degraded: res.Degraded})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}
