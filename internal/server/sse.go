package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/bancapix/server/internal/events"
)

// EventReady — первый кадр потока после подключения.
const EventReady = "ready"

// writeFrame пишет один кадр text/event-stream.
func writeFrame(w io.Writer, name string, payload any) error {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// streamEvents — GET /events. Подписка снимается, когда клиент отключается.
func (s *Server) streamEvents(c echo.Context) error {
	res := c.Response()
	h := res.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	sub := s.bus.Subscribe(eventNames...)
	defer sub.Close()

	if err := writeFrame(res, EventReady, map[string]bool{"ok": true}); err != nil {
		return nil
	}
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeFrame(res, ev.Name, ev.Payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// eventNames — события, которые видит панель.
var eventNames = []string{
	events.DepositsChanged,
	events.PayoutsChanged,
	events.LedgerChanged,
	events.Heartbeat,
}
