// Package tts synthesizes narration audio from the script artifact by
// calling a speech-synthesis HTTP endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reelgen/internal/config"
	"reelgen/internal/providers/script"
	"reelgen/internal/services"
	"reelgen/internal/stage"
	"reelgen/internal/task"
)

const (
	artifactName       = "audio.mp3"
	defaultHTTPTimeout = 60 * time.Second
)

// Provider implements the audio stage.
type Provider struct {
	cfg        config.TTS
	httpClient *http.Client
}

// NewProvider builds the TTS provider from configuration.
func NewProvider(cfg config.TTS) *Provider {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Provider{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
}

func (p *Provider) Name() string { return "audio" }

type synthesisRequest struct {
	Input  string `json:"input"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

// Generate reads the script artifact and writes audio.mp3 to the workdir.
func (p *Provider) Generate(ctx context.Context, req *stage.Request) (task.Artifact, error) {
	if strings.TrimSpace(p.cfg.BaseURL) == "" {
		return "", services.Wrap(services.ErrValidation, "audio", "synthesize", "tts base_url not configured", nil)
	}

	scriptPath, ok := req.Input("script")
	if !ok {
		return "", services.Wrap(services.ErrFatal, "audio", "synthesize", "script artifact missing", nil)
	}
	doc, err := script.LoadDocument(string(scriptPath))
	if err != nil {
		return "", services.Wrap(services.ErrFatal, "audio", "synthesize", "load script artifact", err)
	}
	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrFatal, "audio", "synthesize", "script text is empty", nil)
	}

	voice := req.Params.Voice
	if voice == "" {
		voice = p.cfg.DefaultVoice
	}

	audio, err := p.synthesize(ctx, text, voice)
	if err != nil {
		return "", err
	}

	path := filepath.Join(req.WorkDir, artifactName)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", services.Wrap(services.ErrFatal, "audio", "synthesize", "write audio artifact", err)
	}
	return task.Artifact(path), nil
}

// HealthCheck verifies the endpoint is configured.
func (p *Provider) HealthCheck(context.Context) stage.Health {
	if strings.TrimSpace(p.cfg.BaseURL) == "" {
		return stage.Unhealthy("audio", "tts base_url not configured")
	}
	return stage.Healthy("audio")
}

func (p *Provider) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	body, err := json.Marshal(synthesisRequest{Input: text, Voice: voice, Format: "mp3"})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, services.Wrap(services.ErrTimeout, "audio", "synthesize", "request timed out", err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "audio", "synthesize", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		message := fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, services.Wrap(services.ErrTransient, "audio", "synthesize", message, nil)
		}
		return nil, services.Wrap(services.ErrFatal, "audio", "synthesize", message, nil)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "audio", "synthesize", "read audio payload", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrTransient, "audio", "synthesize", "endpoint returned empty audio", nil)
	}
	return audio, nil
}
