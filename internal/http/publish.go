package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/config"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/publisher"
)

// BatchPublisher is satisfied by *publisher.Publisher.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, batchSize, maxAttempts int, now time.Time) (publisher.Result, error)
}

// manualPublishTimeout bounds a manual batch once it is detached from the request.
const manualPublishTimeout = 2 * time.Minute

type publishReq struct {
	BatchSize int `json:"batchSize"`
}

// manualPublishHandler runs one publisher batch on demand.
func manualPublishHandler(pub BatchPublisher, oc config.OutboxConfig, clk clock.Clock) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req publishReq
		if c.Request().ContentLength > 0 {
			if err := c.Bind(&req); err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
			}
		}

		batch := oc.BatchSize
		if req.BatchSize > 0 && req.BatchSize <= 1000 {
			batch = req.BatchSize
		}

		// a client hanging up must not count as a delivery failure or strand leased rows
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), manualPublishTimeout)
		defer cancel()

		res, err := pub.PublishBatch(ctx, batch, oc.MaxAttempts, clk.Now())
		if err != nil {
			log.Errorf("manual publish failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "publish failed"})
		}
		return c.JSON(http.StatusOK, res)
	}
}
