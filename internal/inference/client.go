package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/eqcoach/internal/model"
)

const (
	// DefaultTimeout applies separately to connect, read and write.
	DefaultTimeout = 8 * time.Second

	analyzePath = "/analyze"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// call is the handle for one tracked analyze request.
type call struct {
	id     string
	cancel context.CancelFunc
}

// Client submits frame and audio pairs to the analyze endpoint.
type Client struct {
	analyzeURL string
	http       *http.Client
	log        zerolog.Logger

	inflight     atomic.Pointer[call]
	shutdown     atomic.Bool
	shutdownOnce sync.Once
}

// New creates a client for cfg.BaseURL. A zero Timeout uses DefaultTimeout.
func New(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		analyzeURL: strings.TrimRight(cfg.BaseURL, "/") + analyzePath,
		http:       &http.Client{Transport: newTransport(timeout)},
		log:        log.With().Str("component", "inference").Logger(),
	}
}

type analyzeResponse struct {
	Verdict *model.Verdict   `json:"verdict"`
	Debug   *model.DebugInfo `json:"debug"`
}

// Analyze posts one frame and audio container and returns the parsed
// verdict. Every failure is a *model.ServerError.
func (c *Client) Analyze(ctx context.Context, frame, audio []byte) (*model.InferenceResult, error) {
	if c.shutdown.Load() {
		return nil, &model.ServerError{Kind: model.ConnectionFailed, Detail: "client shut down"}
	}

	body, contentType, err := encodeMultipart(frame, audio)
	if err != nil {
		return nil, &model.ServerError{Kind: model.ConnectionFailed, Detail: err.Error(), Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	handle := &call{id: uuid.NewString(), cancel: cancel}
	c.inflight.Store(handle)
	defer func() {
		c.inflight.CompareAndSwap(handle, nil)
		cancel()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL, body)
	if err != nil {
		return nil, &model.ServerError{Kind: model.ConnectionFailed, Detail: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", handle.id)

	log := c.log.With().Str("request_id", handle.id).Logger()
	start := time.Now()
	log.Debug().Int("frame_bytes", len(frame)).Int("audio_bytes", len(audio)).Msg("Submitting analyze request")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Analyze request failed")
		return nil, &model.ServerError{Kind: model.ConnectionFailed, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		log.Warn().Int("status", resp.StatusCode).Msg("Analyze request rejected")
		return nil, &model.ServerError{Kind: model.HTTPStatus, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.ServerError{Kind: model.ConnectionFailed, Detail: err.Error(), Err: err}
	}

	result, err := decodeResult(data)
	if err != nil {
		log.Warn().Err(err).Msg("Analyze response rejected")
		return nil, err
	}

	log.Debug().
		Stringer("verdict", result.Verdict).
		Dur("elapsed", time.Since(start)).
		Msg("Analyze request completed")
	return result, nil
}

func decodeResult(data []byte) (*model.InferenceResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &model.ServerError{Kind: model.EmptyBody}
	}

	var raw analyzeResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &model.ServerError{Kind: model.InvalidResponse, Detail: err.Error(), Err: err}
	}
	if raw.Verdict == nil {
		return nil, &model.ServerError{Kind: model.InvalidResponse, Detail: "missing verdict"}
	}
	return &model.InferenceResult{Verdict: *raw.Verdict, Debug: raw.Debug}, nil
}

func encodeMultipart(frame, audio []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	parts := []struct {
		field, filename, mediaType string
		data                       []byte
	}{
		{"frame", "frame.jpg", "image/jpeg", frame},
		{"audio", "audio.wav", "audio/wav", audio},
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.field, p.filename))
		h.Set("Content-Type", p.mediaType)
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create %s part: %w", p.field, err)
		}
		if _, err := pw.Write(p.data); err != nil {
			return nil, "", fmt.Errorf("write %s part: %w", p.field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// CancelInflight aborts the tracked request, if any. The aborted Analyze
// call returns a ConnectionFailed error.
func (c *Client) CancelInflight() {
	if h := c.inflight.Swap(nil); h != nil {
		c.log.Debug().Str("request_id", h.id).Msg("Cancelling in-flight request")
		h.cancel()
	}
}

// Shutdown cancels any tracked request and releases pooled connections.
// Later Analyze calls fail immediately.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.shutdown.Store(true)
		c.CancelInflight()
		c.http.CloseIdleConnections()
	})
}
