package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tokenscope/tokenscope/pkg/models"
)

// ChatRequest is the request body for POST /api/scans/:id/chat.
type ChatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

// ChatResponse is the response for POST /api/scans/:id/chat.
type ChatResponse struct {
	Message string `json:"message"`
}

// chatHandler handles POST /api/scans/:id/chat. Requires a configured LLM.
func (s *Server) chatHandler(c *echo.Context) error {
	scanID := c.Param("id")
	if scanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "scan id is required")
	}

	if s.chat == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat is not available: no LLM configured")
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	reply, err := s.chat.ChatAboutScan(c.Request().Context(), scanID, req.Messages)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, ChatResponse{Message: reply.Content})
}
