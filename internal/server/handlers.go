package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"waterfootprint/backend/internal/logging"
)

const (
	noHistoryAnalysis = "No history available yet. Scan more items!"
	chatFailureReply  = "I'm having trouble thinking right now. Try again!"
)

type footprintTextRequest struct {
	Text *string `json:"text"`
}

type chatRequest struct {
	Message *string `json:"message"`
}

type habitsRequest struct {
	Items json.RawMessage `json:"items"`
}

type addHistoryRequest struct {
	UserID any `json:"user_id"`
	Item   any `json:"item"`
}

func (a *App) getHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(c, http.StatusBadRequest, "User ID required")
		return
	}
	if a.history == nil {
		writeError(c, http.StatusInternalServerError, "Database not connected")
		return
	}

	records, err := a.history.List(c.Request.Context(), userID)
	if err != nil {
		logging.FromContext(c.Request.Context()).Error().Err(err).Str("user_id", userID).Msg("fetch history failed")
		writeError(c, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	if records == nil {
		records = []HistoryRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (a *App) addHistory(c *gin.Context) {
	var body addHistoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid data format")
		return
	}
	userID, _ := body.UserID.(string)
	item, isObject := body.Item.(map[string]any)
	if strings.TrimSpace(userID) == "" || !isObject {
		writeError(c, http.StatusBadRequest, "Invalid data format")
		return
	}
	if a.history == nil {
		writeError(c, http.StatusInternalServerError, "Database not connected")
		return
	}

	if err := a.history.Append(c.Request.Context(), userID, item); err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeError(c, http.StatusBadRequest, "Invalid data format")
			return
		}
		logging.FromContext(c.Request.Context()).Error().Err(err).Str("user_id", userID).Msg("save history failed")
		writeError(c, http.StatusInternalServerError, "Failed to save history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Saved to history"})
}

func (a *App) footprint(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.FromContext(ctx)

	if header, err := c.FormFile("image"); err == nil {
		image, mimeType, err := readUploadedImage(header)
		if err != nil {
			logger.Warn().Err(err).Msg("image upload rejected")
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
		result, err := a.generateJSON(ctx, ModelRequest{
			Prompt:        buildAnalysisPrompt(),
			Image:         image,
			ImageMIMEType: mimeType,
			ExpectJSON:    true,
		})
		if err != nil {
			logger.Error().Err(err).Msg("footprint analysis failed")
			writeError(c, http.StatusInternalServerError, clientMessage(err))
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	var body footprintTextRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Text == nil || strings.TrimSpace(*body.Text) == "" {
		writeError(c, http.StatusBadRequest, "No image or text provided")
		return
	}
	result, err := a.generateJSON(ctx, ModelRequest{
		Prompt:     buildTextAnalysisPrompt(strings.TrimSpace(*body.Text)),
		ExpectJSON: true,
	})
	if err != nil {
		logger.Error().Err(err).Msg("footprint analysis failed")
		writeError(c, http.StatusInternalServerError, clientMessage(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *App) chat(c *gin.Context) {
	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Message == nil || strings.TrimSpace(*body.Message) == "" {
		writeError(c, http.StatusBadRequest, "No message provided")
		return
	}
	if a.model == nil {
		writeError(c, http.StatusInternalServerError, "API Key not configured")
		return
	}

	result, err := a.generateJSON(c.Request.Context(), ModelRequest{
		Prompt:     buildChatPrompt(*body.Message),
		ExpectJSON: true,
	})
	if err != nil {
		logging.FromContext(c.Request.Context()).Error().Err(err).Msg("chat failed")
		writeError(c, http.StatusInternalServerError, chatFailureReply)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *App) analyzeHabits(c *gin.Context) {
	var body habitsRequest
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Items) == 0 {
		writeError(c, http.StatusBadRequest, "No items provided")
		return
	}
	if isEmptyJSONValue(body.Items) {
		c.JSON(http.StatusOK, gin.H{"analysis": noHistoryAnalysis, "recommendations": []string{}})
		return
	}
	var items []any
	if err := json.Unmarshal(body.Items, &items); err != nil {
		writeError(c, http.StatusBadRequest, "Items must be a list")
		return
	}
	if a.model == nil {
		writeError(c, http.StatusInternalServerError, "API Key not configured")
		return
	}

	result, err := a.generateJSON(c.Request.Context(), ModelRequest{
		Prompt:     buildHabitPrompt(items),
		ExpectJSON: true,
	})
	if err != nil {
		logging.FromContext(c.Request.Context()).Error().Err(err).Int("items", len(items)).Msg("habit analysis failed")
		writeError(c, http.StatusInternalServerError, "Failed to analyze habits.")
		return
	}
	c.JSON(http.StatusOK, result)
}

// generateJSON runs the model pipeline: invoke with fallback, then parse.
func (a *App) generateJSON(ctx context.Context, req ModelRequest) (any, error) {
	if a.model == nil {
		return nil, ErrUnconfigured
	}
	raw, err := a.model.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	parsed, err := parseModelJSON(raw)
	if err != nil {
		logging.FromContext(ctx).Error().
			Err(err).
			Str("raw_reply", truncateForLog(raw, 2000)).
			Msg("model reply is not JSON")
		return nil, err
	}
	return parsed, nil
}

// isEmptyJSONValue reports null, false, zero and empty strings, arrays and
// objects. These all mean "no history yet" to the habit analysis.
func isEmptyJSONValue(raw json.RawMessage) bool {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return false
	}
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func readUploadedImage(header *multipart.FileHeader) ([]byte, string, error) {
	if header.Size > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d MB limit", maxImageBytes>>20)
	}
	file, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open uploaded image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read uploaded image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d MB limit", maxImageBytes>>20)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", errors.New("cannot identify image file")
	}
	return data, mimeType, nil
}
