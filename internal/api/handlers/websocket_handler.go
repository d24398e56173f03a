package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/controller"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/logger"
)

type WebSocketHandler struct {
	controller *controller.Controller
}

func NewWebSocketHandler(ctrl *controller.Controller) *WebSocketHandler {
	return &WebSocketHandler{
		controller: ctrl,
	}
}

type wsMessage struct {
	Type                 string          `json:"type"`
	Content              string          `json:"content"`
	SessionID            string          `json:"session_id"`
	SummaryID            string          `json:"summary_id"`
	Rating               json.RawMessage `json:"rating"`
	Comments             string          `json:"comments"`
	ImprovementRequested bool            `json:"improvement_requested"`
}

// HandleConnection serves "query" and "feedback" messages until the client
// disconnects. Query answers are streamed word by word, then summarized in
// a "complete" message.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		var err error
		switch msg.Type {
		case "query":
			err = h.streamResponse(c, msg)
		case "feedback":
			resp := h.controller.HandleFeedback(context.Background(), msg.SummaryID, decodeRating(msg.Rating),
				msg.Comments, msg.ImprovementRequested, msg.SessionID)
			err = c.WriteJSON(map[string]any{
				"type":     "feedback",
				"response": resp,
			})
		default:
			err = h.sendError(c, "Unsupported message type", "")
		}

		if err != nil {
			logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, msg wsMessage) error {
	if err := h.sendChunk(c, "status", "Processing query..."); err != nil {
		return err
	}

	resp := h.controller.HandleQuery(context.Background(), msg.Content, msg.SessionID)
	if !resp.IsSuccessful() {
		return h.sendError(c, resp.ErrorMessage, resp.Query.SessionID)
	}

	var text string
	if len(resp.AgentLogs) > 0 {
		text = resp.AgentLogs[0]
	}

	words := splitIntoWords(text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, resp)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]any{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, resp *models.Response) error {
	return c.WriteJSON(map[string]any{
		"type":           "complete",
		"response_id":    resp.ResponseID,
		"session_id":     resp.Query.SessionID,
		"summary":        resp.Summary,
		"reflection":     resp.Reflection,
		"execution_time": resp.ExecutionTime,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, message, sessionID string) error {
	return c.WriteJSON(map[string]any{
		"type":       "error",
		"error":      message,
		"session_id": sessionID,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	current := []rune{}

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	for _, r := range text {
		switch r {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current = append(current, r)
		}
	}
	flush()

	return words
}
