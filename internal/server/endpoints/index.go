package endpoints

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fengailin/qwen-ocr/internal/api"
)

const indexHTML = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>QwenLM OCR 服务</title>
</head>
<body>
  <h1>欢迎使用 QwenLM OCR 服务</h1>
  <p>服务运行中。识别接口位于 <code>/api/recognize</code>，批量接口位于 <code>/api/zip/ocr</code>。</p>
</body>
</html>
`

// IndexEndpoint handles GET / with a minimal landing page.
type IndexEndpoint struct{}

func (e *IndexEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/{$}", e.handler
}

func (e *IndexEndpoint) RequiresInit() bool { return false }

func (e *IndexEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, indexHTML)
}

func (e *IndexEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Fetch the server landing page",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			body, err := client.GetText(cmd.Context(), "/")
			if err != nil {
				return err
			}
			fmt.Println(body)
			return nil
		},
	}
}
