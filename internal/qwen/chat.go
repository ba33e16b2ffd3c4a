package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Chat creation API types. The conversation payload mirrors what the
// provider's own web client sends: both message ids are generated
// client-side and the assistant slot is seeded empty.

type chatFileAttachment struct {
	Type      string    `json:"type"`
	File      *FileInfo `json:"file"`
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Size      int64     `json:"size"`
	Error     string    `json:"error"`
	FileType  string    `json:"file_type"`
	ShowType  string    `json:"showType"`
	FileClass string    `json:"file_class"`
	Image     string    `json:"image"`
}

type chatFeatureConfig struct {
	ThinkingEnabled bool `json:"thinking_enabled"`
}

type chatMessage struct {
	ID            string               `json:"id"`
	ParentID      *string              `json:"parentId"`
	ChildrenIDs   []string             `json:"childrenIds"`
	Role          string               `json:"role"`
	Content       string               `json:"content"`
	Files         []chatFileAttachment `json:"files,omitempty"`
	Timestamp     int64                `json:"timestamp"`
	Models        []string             `json:"models,omitempty"`
	Model         string               `json:"model,omitempty"`
	ModelName     string               `json:"modelName,omitempty"`
	ModelIdx      int                  `json:"modelIdx,omitempty"`
	UserContext   any                  `json:"userContext"`
	ChatType      string               `json:"chat_type"`
	FeatureConfig *chatFeatureConfig   `json:"feature_config,omitempty"`
}

type chatHistory struct {
	Messages           map[string]chatMessage `json:"messages"`
	CurrentID          string                 `json:"currentId"`
	CurrentResponseIDs []string               `json:"currentResponseIds"`
}

type newChatRequest struct {
	Chat newChatBody `json:"chat"`
}

type newChatBody struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Models    []string       `json:"models"`
	Params    map[string]any `json:"params"`
	History   chatHistory    `json:"history"`
	Messages  []chatMessage  `json:"messages"`
	Tags      []string       `json:"tags"`
	Timestamp int64          `json:"timestamp"`
	ChatType  string         `json:"chat_type"`
}

type newChatResponse struct {
	Chat *struct {
		ID        string `json:"id"`
		SessionID string `json:"session_id"`
	} `json:"chat"`
}

// CreateChat opens a new conversation seeded with the prompt and the
// uploaded image, returning the identifiers the completion call needs.
func (c *Client) CreateChat(ctx context.Context, token, cookie string, file *FileInfo, prompt string) (*ChatContext, error) {
	userMsgID := uuid.NewString()
	assistantMsgID := uuid.NewString()
	ts := time.Now().Unix()

	attachment := chatFileAttachment{
		Type:      "image",
		File:      file,
		ID:        file.ID,
		URL:       "/api/v1/files/" + file.ID,
		Name:      file.name(),
		Status:    "uploaded",
		Size:      file.Meta.Size,
		FileType:  file.contentType(),
		ShowType:  "image",
		FileClass: "vision",
		Image:     "/api/v1/files/" + file.ID,
	}

	userMsg := chatMessage{
		ID:            userMsgID,
		ChildrenIDs:   []string{assistantMsgID},
		Role:          "user",
		Content:       prompt,
		Files:         []chatFileAttachment{attachment},
		Timestamp:     ts,
		Models:        []string{c.model},
		ChatType:      "t2t",
		FeatureConfig: &chatFeatureConfig{},
	}
	assistantMsg := chatMessage{
		ID:          assistantMsgID,
		ParentID:    &userMsgID,
		ChildrenIDs: []string{},
		Role:        "assistant",
		Model:       c.model,
		ModelName:   "Qwen2.5-VL-72B-Instruct",
		Timestamp:   ts,
		ChatType:    "t2t",
	}

	reqBody := newChatRequest{
		Chat: newChatBody{
			Title:  "新建对话",
			Models: []string{c.model},
			Params: map[string]any{},
			History: chatHistory{
				Messages: map[string]chatMessage{
					userMsgID:      userMsg,
					assistantMsgID: assistantMsg,
				},
				CurrentID:          assistantMsgID,
				CurrentResponseIDs: []string{assistantMsgID},
			},
			Messages:  []chatMessage{userMsg, assistantMsg},
			Tags:      []string{},
			Timestamp: ts * 1000,
			ChatType:  "t2t",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chats/new", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setBrowserHeaders(req, token, cookie)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("chat creation failed: %v", err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to read chat response: %v", err), StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Message:     fmt.Sprintf("chat creation failed with status %d", resp.StatusCode),
			StatusCode:  resp.StatusCode,
			RawResponse: string(body),
		}
	}

	var chatResp newChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to parse chat response: %v", err), RawResponse: string(body), Err: err}
	}
	if chatResp.Chat == nil {
		return nil, &Error{Message: "chat creation response has no chat envelope", RawResponse: string(body)}
	}

	sessionID := chatResp.Chat.SessionID
	if sessionID == "" {
		sessionID = chatResp.Chat.ID
	}

	cc := &ChatContext{
		SessionID:      sessionID,
		ChatID:         chatResp.Chat.ID,
		AssistantMsgID: assistantMsgID,
	}
	c.logger.Debug("chat created", "session_id", cc.SessionID, "chat_id", cc.ChatID)
	return cc, nil
}
