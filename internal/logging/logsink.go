package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// The log sink ships warn-and-above entries to the platform's central log
// service when LOG_SINK_BASE_URL is set. Shipping is best-effort: a full
// buffer drops entries rather than blocking the caller.

type sinkPayload struct {
	Source   string            `json:"source"`
	Level    string            `json:"level"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type sinkSender struct {
	baseURL string
	apiKey  string
	source  string
	client  *http.Client
	ch      chan sinkPayload
}

func newSinkSender(baseURL, apiKey, source string) *sinkSender {
	return &sinkSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		source:  source,
		client:  &http.Client{Timeout: 3 * time.Second},
		ch:      make(chan sinkPayload, 200),
	}
}

func (s *sinkSender) start() {
	go func() {
		for payload := range s.ch {
			body, _ := json.Marshal(payload)
			req, err := http.NewRequest(http.MethodPost, s.baseURL+"/v1/logs", bytes.NewReader(body))
			if err != nil {
				continue
			}
			req.Header.Set("Content-Type", "application/json")
			if s.apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+s.apiKey)
			}
			resp, err := s.client.Do(req)
			if err != nil {
				continue
			}
			_ = resp.Body.Close()
		}
	}()
}

func attachLogSink(logger *zap.Logger) *zap.Logger {
	baseURL := os.Getenv("LOG_SINK_BASE_URL")
	if baseURL == "" {
		return logger
	}
	source := os.Getenv("LOG_SINK_SOURCE")
	if source == "" {
		source = "workflow-engine"
	}
	sender := newSinkSender(baseURL, os.Getenv("LOG_SINK_API_KEY"), source)
	sender.start()
	sink := &sinkCore{
		level:  zapcore.WarnLevel,
		sender: sender,
	}
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, sink)
	}))
}

type sinkCore struct {
	level  zapcore.LevelEnabler
	fields []zapcore.Field
	sender *sinkSender
}

func (c *sinkCore) Enabled(level zapcore.Level) bool {
	return c.level.Enabled(level)
}

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *sinkCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *sinkCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	metadata := map[string]string{}
	for k, v := range enc.Fields {
		metadata[k] = fmt.Sprint(v)
	}
	payload := sinkPayload{
		Source:   c.sender.source,
		Level:    entry.Level.String(),
		Message:  entry.Message,
		Metadata: metadata,
	}
	select {
	case c.sender.ch <- payload:
	default:
	}
	return nil
}

func (c *sinkCore) Sync() error { return nil }

func syncOnStop(logger *zap.Logger) fx.Hook {
	return fx.Hook{OnStop: func(context.Context) error {
		_ = logger.Sync()
		return nil
	}}
}
