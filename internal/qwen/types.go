package qwen

import "time"

// FileMeta is the metadata block attached to an uploaded file.
type FileMeta struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// FileInfo is the provider-assigned identity for an uploaded image.
// It lives only for the duration of one recognition request.
type FileInfo struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id,omitempty"`
	Filename  string   `json:"filename,omitempty"`
	Meta      FileMeta `json:"meta"`
	CreatedAt int64    `json:"created_at,omitempty"`
	UpdatedAt int64    `json:"updated_at,omitempty"`
}

// FileInfoFromID synthesizes a minimal FileInfo for callers that only
// hold a provider file id, e.g. the file-id recognition endpoint.
func FileInfoFromID(id string) *FileInfo {
	now := time.Now().Unix()
	return &FileInfo{
		ID:       id,
		Filename: "image.png",
		Meta: FileMeta{
			Name:        "image.png",
			ContentType: "image/png",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// name returns the display filename for chat attachments.
func (f *FileInfo) name() string {
	if f.Filename != "" {
		return f.Filename
	}
	return "image.png"
}

// contentType returns the attachment content type, defaulting to PNG.
func (f *FileInfo) contentType() string {
	if f.Meta.ContentType != "" {
		return f.Meta.ContentType
	}
	return "image/png"
}

// ChatContext identifies a freshly created conversation and the
// assistant message slot the streamed completion writes into.
type ChatContext struct {
	SessionID      string
	ChatID         string
	AssistantMsgID string
}
