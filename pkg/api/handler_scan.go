package api

import (
	"errors"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tokenscope/tokenscope/pkg/config"
	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/services"
)

// PreflightResponse is the response for GET /api/preflight/contract-code.
type PreflightResponse struct {
	Chain             string `json:"chain"`
	Address           string `json:"address"`
	HasCode           bool   `json:"hasCode"`
	BytecodeSizeBytes int    `json:"bytecodeSizeBytes"`
}

// preflightHandler handles GET /api/preflight/contract-code.
func (s *Server) preflightHandler(c *echo.Context) error {
	address, ok := models.NormalizeTokenAddress(c.QueryParam("address"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "address must be a 0x-prefixed 40-character hex string")
	}

	result := s.chain.GetCode(c.Request().Context(), address)
	if result.Error != "" {
		return echo.NewHTTPError(http.StatusBadGateway, result.Error)
	}

	return c.JSON(http.StatusOK, PreflightResponse{
		Chain:             config.Network,
		Address:           address,
		HasCode:           len(result.Result) > 2,
		BytecodeSizeBytes: hexByteLen(result.Result),
	})
}

func hexByteLen(blob string) int {
	if len(blob) <= 2 {
		return 0
	}
	return (len(blob) - 2) / 2
}

// CreateScanRequest is the request body for POST /api/scans.
type CreateScanRequest struct {
	TokenAddress string `json:"tokenAddress"`
}

// CreateScanResponse is the response for POST /api/scans.
type CreateScanResponse struct {
	ScanID string            `json:"scanId"`
	Status models.ScanStatus `json:"status"`
	Cached bool              `json:"cached"`
}

// createScanHandler handles POST /api/scans. A recent complete scan for the
// same token is returned from cache instead of starting a new run.
func (s *Server) createScanHandler(c *echo.Context) error {
	var req CreateScanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	address, ok := models.NormalizeTokenAddress(req.TokenAddress)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "tokenAddress must be a 0x-prefixed 40-character hex string")
	}

	ctx := c.Request().Context()

	// Reject non-contract addresses before queueing a run.
	code := s.chain.GetCode(ctx, address)
	if code.Error != "" {
		return echo.NewHTTPError(http.StatusBadGateway, code.Error)
	}
	if len(code.Result) <= 2 {
		return echo.NewHTTPError(http.StatusBadRequest, "address does not contain contract bytecode on "+config.Network)
	}

	cached, err := s.scans.FindRecentComplete(ctx, config.Network, address)
	if err == nil && time.Since(cached.CreatedAt) <= s.cacheTTL {
		return c.JSON(http.StatusOK, CreateScanResponse{
			ScanID: cached.ID,
			Status: cached.Status,
			Cached: true,
		})
	}
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return mapServiceError(err)
	}

	scan, err := s.scans.CreateScan(ctx, config.Network, address)
	if err != nil {
		return mapServiceError(err)
	}
	if _, err := s.jobs.Enqueue(ctx, scan.ID); err != nil {
		return mapServiceError(err)
	}
	s.worker.Trigger()

	return c.JSON(http.StatusCreated, CreateScanResponse{
		ScanID: scan.ID,
		Status: scan.Status,
		Cached: false,
	})
}

// getScanHandler handles GET /api/scans/:id.
func (s *Server) getScanHandler(c *echo.Context) error {
	scanID := c.Param("id")
	if scanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scan id is required")
	}

	scan, err := s.scans.GetScan(c.Request().Context(), scanID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, scan)
}

// RunScanResponse is the response for POST /api/scans/:id/run.
type RunScanResponse struct {
	ScanID    string            `json:"scanId"`
	Status    models.ScanStatus `json:"status"`
	Skipped   bool              `json:"skipped,omitempty"`
	Enqueued  bool              `json:"enqueued,omitempty"`
	JobID     string            `json:"jobId,omitempty"`
	JobStatus models.JobStatus  `json:"jobStatus,omitempty"`
}

// runScanHandler handles POST /api/scans/:id/run. Enqueueing is idempotent;
// a scan already in a terminal state is not re-run.
func (s *Server) runScanHandler(c *echo.Context) error {
	scanID := c.Param("id")
	if scanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scan id is required")
	}

	ctx := c.Request().Context()
	scan, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return mapServiceError(err)
	}

	if scan.Status.IsTerminal() {
		return c.JSON(http.StatusOK, RunScanResponse{
			ScanID:  scan.ID,
			Status:  scan.Status,
			Skipped: true,
		})
	}

	result, err := s.jobs.Enqueue(ctx, scan.ID)
	if err != nil {
		return mapServiceError(err)
	}
	s.worker.Trigger()

	return c.JSON(http.StatusAccepted, RunScanResponse{
		ScanID:    scan.ID,
		Status:    scan.Status,
		Enqueued:  result.Enqueued,
		JobID:     result.JobID,
		JobStatus: result.Status,
	})
}
