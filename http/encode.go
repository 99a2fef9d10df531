package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"

	"github.com/fwojciec/ragchat"
)

// NewRequest builds the POST request for a chat send. Requests without
// images carry a JSON body. Requests with images carry a multipart form
// with one field per top-level JSON key plus one image_<i> field per image.
func NewRequest(ctx context.Context, url string, req ragchat.ChatRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("http: encode request: %w", err)
	}

	contentType := "application/json"
	if len(req.Images) > 0 {
		var buf bytes.Buffer
		contentType, err = writeMultipart(&buf, body, req.Images)
		if err != nil {
			return nil, fmt.Errorf("http: encode request: %w", err)
		}
		body = buf.Bytes()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "text/event-stream")
	return httpReq, nil
}

// writeMultipart writes the fields of the JSON object body followed by the
// images and returns the form's content type. String values are written
// unquoted; other values are written as JSON text.
func writeMultipart(buf *bytes.Buffer, body []byte, images []ragchat.Image) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := multipart.NewWriter(buf)
	for _, k := range keys {
		if err := w.WriteField(k, fieldValue(fields[k])); err != nil {
			return "", err
		}
	}
	for i, img := range images {
		if err := w.WriteField("image_"+strconv.Itoa(i), img.DataURI()); err != nil {
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return w.FormDataContentType(), nil
}

func fieldValue(raw json.RawMessage) string {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
