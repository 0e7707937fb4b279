package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/storefront"
	"github.com/m3rciful/paperbot/storefront/bridge"
)

// RequestPaper asks the backend to deliver an owned paper. On acceptance a
// send_paper payload is handed to the host for out-of-band delivery.
func (c *Controller) RequestPaper(ctx context.Context, h bridge.Host, paperID int64) error {
	sess := c.Session(h)
	key := "request:" + strconv.FormatInt(paperID, 10)
	if !sess.Begin(key) {
		logger.Debug(ctx, component, "request.in_flight", slog.Int64("paper_id", paperID))
		return ErrInFlight
	}
	defer sess.End(key)

	raw, err := h.InitData()
	if err != nil {
		c.fail(ctx, h, "request", err, MsgRequestFailed)
		return err
	}
	res, err := c.api.RequestPaper(ctx, raw, paperID)
	if err != nil {
		c.fail(ctx, h, "request", err, MsgRequestFailed)
		return err
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = MsgRequestFailed
		}
		err := fmt.Errorf("%w: request of paper %d: %s", ErrRejected, paperID, msg)
		logger.Warn(ctx, component, "action.failed",
			slog.String("op", "request"),
			slog.String("err", err.Error()),
			slog.String("err_code", errorCode(err)),
		)
		c.showError(ctx, h, msg)
		return err
	}

	data, err := json.Marshal(storefront.NewSendPaperPayload(paperID))
	if err != nil {
		return fmt.Errorf("app: encode delivery payload: %w", err)
	}
	if err := h.SendData(ctx, data); err != nil {
		c.fail(ctx, h, "request.send_data", err, MsgSendRequestFailed)
		return err
	}
	logger.Info(ctx, component, "request.dispatched", slog.Int64("paper_id", paperID))
	c.showSuccess(ctx, h, MsgPaperSent)
	return nil
}
