package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported 表示 ResponseWriter 不支持 Flush。
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SSEWriter 按事件写出 SSE 帧，每帧立即 flush。
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

// NewSSEWriter 写好响应头和 200 状态码。w 不支持 Flush 时什么都不写。
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Event 发送带事件类型的SSE消息。第一次写失败后（通常是客户端断开）后续调用直接返回该错误。
func (s *SSEWriter) Event(event string, data interface{}) error {
	if s.err != nil {
		return s.err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse %s event: %w", event, err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		s.err = fmt.Errorf("write sse %s event: %w", event, err)
		return s.err
	}
	s.flusher.Flush()
	return nil
}
