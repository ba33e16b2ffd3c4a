package qwen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const dataPrefix = "data: "

// streamEvent is one decoded fragment of a streamed completion.
type streamEvent struct {
	Delta  string
	Finish bool
}

type completionChunk struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Delta        struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// streamDecoder reads the event-line response body incrementally.
// Each line is either blank (skipped), a data-prefixed JSON fragment,
// or anything else (skipped). Malformed JSON fragments are logged and
// skipped rather than aborting the stream.
type streamDecoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
}

func newStreamDecoder(r io.Reader, logger *slog.Logger) *streamDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &streamDecoder{scanner: sc, logger: logger}
}

// Next returns the next decoded event. It returns io.EOF when the
// stream ends and any read error otherwise.
func (d *streamDecoder) Next() (streamEvent, error) {
	for d.scanner.Scan() {
		line := strings.TrimRight(d.scanner.Text(), "\r")
		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(line[len(dataPrefix):]), &chunk); err != nil {
			d.logger.Warn("skipping malformed stream fragment", "error", err, "line", line)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason == "stop" {
			return streamEvent{Finish: true}, nil
		}
		if choice.Delta.Content != "" {
			return streamEvent{Delta: choice.Delta.Content}, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return streamEvent{}, err
	}
	return streamEvent{}, io.EOF
}

type completionContent struct {
	Type          string             `json:"type"`
	Text          string             `json:"text,omitempty"`
	Image         string             `json:"image,omitempty"`
	ChatType      string             `json:"chat_type"`
	FeatureConfig *chatFeatureConfig `json:"feature_config,omitempty"`
}

type completionMessage struct {
	Role    string              `json:"role"`
	Content []completionContent `json:"content"`
}

type completionRequest struct {
	Stream            bool                `json:"stream"`
	IncrementalOutput bool                `json:"incremental_output"`
	ChatType          string              `json:"chat_type"`
	Model             string              `json:"model"`
	Messages          []completionMessage `json:"messages"`
	SessionID         string              `json:"session_id"`
	ChatID            string              `json:"chat_id"`
	ID                string              `json:"id"`
}

// StreamCompletion submits the recognition message and assembles the
// streamed response. The stream counts as complete once a finish
// signal arrives, or once at least one content delta was received and
// the stream ends; the provider does not reliably send a terminator.
func (c *Client) StreamCompletion(ctx context.Context, token, cookie string, chat *ChatContext, file *FileInfo, prompt string) (string, error) {
	reqBody := completionRequest{
		Stream:            true,
		IncrementalOutput: true,
		ChatType:          "t2t",
		Model:             c.model,
		Messages: []completionMessage{{
			Role: "user",
			Content: []completionContent{
				{Type: "text", Text: prompt, ChatType: "t2t", FeatureConfig: &chatFeatureConfig{}},
				{Type: "image", Image: file.ID, ChatType: "t2t"},
			},
		}},
		SessionID: chat.SessionID,
		ChatID:    chat.ChatID,
		ID:        chat.AssistantMsgID,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")
	c.setBrowserHeaders(req, token, cookie)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("completion request failed: %v", err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &Error{
			Message:     fmt.Sprintf("completion request failed with status %d", resp.StatusCode),
			StatusCode:  resp.StatusCode,
			RawResponse: string(body),
		}
	}

	var sb strings.Builder
	var deltas int
	finished := false

	dec := newStreamDecoder(resp.Body, c.logger)
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &Error{Message: fmt.Sprintf("failed to read completion stream: %v", err), Err: err}
		}
		if ev.Finish {
			finished = true
			break
		}
		sb.WriteString(ev.Delta)
		deltas++
	}

	if !finished && deltas == 0 {
		return "", &Error{Message: "completion stream returned no content"}
	}
	if sb.Len() == 0 {
		return "", &Error{Message: "recognition result is empty"}
	}

	c.logger.Debug("completion stream finished", "deltas", deltas, "explicit_finish", finished, "length", sb.Len())
	return sb.String(), nil
}
