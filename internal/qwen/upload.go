package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
)

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

// contentTypeForFilename infers the upload content type from the file
// extension, falling back to octet-stream for anything unrecognized.
func contentTypeForFilename(filename string) string {
	if ct, ok := imageContentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// UploadImage pushes image bytes to the provider's file store and
// returns the provider-assigned file identity.
func (c *Client) UploadImage(ctx context.Context, token, cookie, filename string, data []byte) (*FileInfo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", contentTypeForFilename(filename))
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/files/", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.setBrowserHeaders(req, token, cookie)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("file upload failed: %v", err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to read upload response: %v", err), StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Message:     fmt.Sprintf("file upload failed with status %d", resp.StatusCode),
			StatusCode:  resp.StatusCode,
			RawResponse: string(body),
		}
	}

	var info FileInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to parse upload response: %v", err), RawResponse: string(body), Err: err}
	}
	if info.ID == "" {
		return nil, &Error{Message: "upload succeeded but response has no file id", RawResponse: string(body)}
	}

	c.logger.Debug("image uploaded", "file_id", info.ID, "filename", filename, "size", len(data))
	return &info, nil
}
