package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tokenscope/tokenscope/pkg/models"
)

// streamStatusCheckEvery is the number of idle poll iterations between scan
// status reads, so a stream over a dead scan still closes.
const streamStatusCheckEvery = 4

// streamRetryMillis is the reconnect hint sent on the ready frame.
const streamRetryMillis = 3000

// ListEventsResponse is the response for GET /api/scans/:id/events.
type ListEventsResponse struct {
	ScanID    string             `json:"scanId"`
	Status    models.ScanStatus  `json:"status"`
	Events    []models.ScanEvent `json:"events"`
	NextAfter int64              `json:"nextAfter"`
}

// listEventsHandler handles GET /api/scans/:id/events. The after cursor is
// the global event id; the response's nextAfter feeds the next poll.
func (s *Server) listEventsHandler(c *echo.Context) error {
	scanID := c.Param("id")
	if scanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scan id is required")
	}

	after, err := parseAfter(c.QueryParam("after"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "after must be a non-negative integer")
	}

	ctx := c.Request().Context()
	scan, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return mapServiceError(err)
	}

	events, err := s.events.ListEventsAfter(ctx, scanID, after)
	if err != nil {
		return mapServiceError(err)
	}

	nextAfter := after
	if len(events) > 0 {
		nextAfter = events[len(events)-1].ID
	}
	if events == nil {
		events = []models.ScanEvent{}
	}

	return c.JSON(http.StatusOK, ListEventsResponse{
		ScanID:    scan.ID,
		Status:    scan.Status,
		Events:    events,
		NextAfter: nextAfter,
	})
}

func parseAfter(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	after, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || after < 0 {
		return 0, fmt.Errorf("invalid after cursor %q", raw)
	}
	return after, nil
}

// streamHandler handles GET /api/scans/:id/stream. It tails the persisted
// timeline over SSE by polling: each event is framed with its global id so a
// reconnecting client resumes via Last-Event-ID. The stream closes with an
// end frame once a terminal event is delivered or the scan row goes terminal.
func (s *Server) streamHandler(c *echo.Context) error {
	scanID := c.Param("id")
	if scanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scan id is required")
	}

	ctx := c.Request().Context()
	if _, err := s.scans.GetScan(ctx, scanID); err != nil {
		return mapServiceError(err)
	}

	cursor, err := parseAfter(c.QueryParam("after"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "after must be a non-negative integer")
	}
	if raw := c.Request().Header.Get("Last-Event-ID"); raw != "" {
		if fromHeader, err := parseAfter(raw); err == nil && fromHeader > cursor {
			cursor = fromHeader
		}
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	fmt.Fprintf(w, "retry: %d\n", streamRetryMillis)
	fmt.Fprintf(w, "event: ready\ndata: {\"scanId\":%q,\"cursor\":%d}\n\n", scanID, cursor)
	_ = rc.Flush()

	idle := 0
	lastTraffic := time.Now()

	for {
		events, err := s.events.ListEventsAfter(ctx, scanID, cursor)
		if err != nil {
			return nil
		}

		sawTerminal := false
		for _, event := range events {
			writeSSEEvent(w, event)
			cursor = event.ID
			if models.IsTerminalEventType(event.Type) {
				sawTerminal = true
			}
		}
		if len(events) > 0 {
			_ = rc.Flush()
			lastTraffic = time.Now()
			idle = 0
		}
		if sawTerminal {
			writeSSEEnd(w, scanID)
			_ = rc.Flush()
			return nil
		}

		if len(events) == 0 {
			idle++
			if idle%streamStatusCheckEvery == 0 {
				scan, err := s.scans.GetScan(ctx, scanID)
				if err == nil && scan.Status.IsTerminal() {
					// One trailing read so nothing appended between the last
					// poll and the status check is lost.
					if tail, err := s.events.ListEventsAfter(ctx, scanID, cursor); err == nil {
						for _, event := range tail {
							writeSSEEvent(w, event)
							cursor = event.ID
						}
					}
					writeSSEEnd(w, scanID)
					_ = rc.Flush()
					return nil
				}
			}
			if time.Since(lastTraffic) >= s.streamHeartbeat {
				fmt.Fprint(w, ": keep-alive\n\n")
				_ = rc.Flush()
				lastTraffic = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.streamPollInterval):
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event models.ScanEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
}

func writeSSEEnd(w http.ResponseWriter, scanID string) {
	fmt.Fprintf(w, "event: end\ndata: {\"scanId\":%q}\n\n", scanID)
}
