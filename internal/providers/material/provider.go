// Package material searches a stock-footage API for clips matching the
// script's search terms and downloads them into the task workdir.
package material

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reelgen/internal/config"
	"reelgen/internal/logging"
	"reelgen/internal/providers/script"
	"reelgen/internal/services"
	"reelgen/internal/stage"
	"reelgen/internal/task"
)

const (
	defaultBaseURL     = "https://api.pexels.com/videos/search"
	defaultMaxClips    = 3
	defaultHTTPTimeout = 60 * time.Second
)

// Provider implements the material stage against a Pexels-style video
// search API.
type Provider struct {
	cfg        config.Materials
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProvider builds the material provider from configuration.
func NewProvider(cfg config.Materials) *Provider {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
}

func (p *Provider) Name() string { return "material" }

// SetLogger satisfies stage.LoggerAware.
func (p *Provider) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Generate downloads up to max_clips videos into <workdir>/materials and
// returns that directory. Finding fewer clips than requested is a shortfall,
// not a failure; finding none fails the stage.
func (p *Provider) Generate(ctx context.Context, req *stage.Request) (task.Artifact, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrValidation, "material", "search", "materials api_key not configured", nil)
	}

	scriptPath, ok := req.Input("script")
	if !ok {
		return "", services.Wrap(services.ErrFatal, "material", "search", "script artifact missing", nil)
	}
	doc, err := script.LoadDocument(string(scriptPath))
	if err != nil {
		return "", services.Wrap(services.ErrFatal, "material", "search", "load script artifact", err)
	}
	terms := doc.SearchTerms
	if len(terms) == 0 && strings.TrimSpace(doc.Topic) != "" {
		terms = []string{doc.Topic}
	}
	if len(terms) == 0 {
		return "", services.Wrap(services.ErrFatal, "material", "search", "no search terms available", nil)
	}

	maxClips := p.cfg.MaxClips
	if maxClips <= 0 {
		maxClips = defaultMaxClips
	}

	materialsDir := filepath.Join(req.WorkDir, "materials")
	if err := os.MkdirAll(materialsDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrFatal, "material", "download", "create materials dir", err)
	}

	downloaded := 0
	seen := make(map[string]struct{})
	for _, term := range terms {
		if downloaded >= maxClips {
			break
		}
		links, err := p.search(ctx, term, maxClips-downloaded)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			p.logger.Warn("clip search failed for term",
				logging.String("term", term), logging.Error(err))
			continue
		}
		for _, link := range links {
			if downloaded >= maxClips {
				break
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}

			dest := filepath.Join(materialsDir, fmt.Sprintf("%03d.mp4", downloaded))
			if err := p.download(ctx, link, dest); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return "", err
				}
				p.logger.Warn("clip download failed", logging.String("url", link), logging.Error(err))
				continue
			}
			downloaded++
		}
	}

	if downloaded == 0 {
		return "", services.Wrap(services.ErrTransient, "material", "download", "no clips could be downloaded", nil)
	}
	if downloaded < maxClips {
		p.logger.Warn("clip shortfall",
			logging.Int("downloaded", downloaded), logging.Int("wanted", maxClips))
	}
	return task.Artifact(materialsDir), nil
}

// HealthCheck verifies the API key is configured.
func (p *Provider) HealthCheck(context.Context) stage.Health {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return stage.Unhealthy("material", "materials api_key not configured")
	}
	return stage.Healthy("material")
}

type searchResponse struct {
	Videos []struct {
		VideoFiles []struct {
			Link   string `json:"link"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"video_files"`
	} `json:"videos"`
}

func (p *Provider) search(ctx context.Context, term string, limit int) ([]string, error) {
	endpoint := fmt.Sprintf("%s?query=%s&per_page=%d", p.cfg.BaseURL, url.QueryEscape(term), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport("search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("search", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, "material", "search", "decode search response", err)
	}

	var links []string
	for _, video := range parsed.Videos {
		best := ""
		bestArea := 0
		for _, file := range video.VideoFiles {
			if area := file.Width * file.Height; area > bestArea && file.Link != "" {
				best = file.Link
				bestArea = area
			}
		}
		if best != "" {
			links = append(links, best)
		}
	}
	return links, nil
}

func (p *Provider) download(ctx context.Context, link, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return classifyTransport("download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus("download", resp.StatusCode)
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create clip file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = os.Remove(dest)
		return services.Wrap(services.ErrTransient, "material", "download", "stream clip body", err)
	}
	return nil
}

func classifyTransport(operation string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "material", operation, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrTransient, "material", operation, "request failed", err)
}

func classifyStatus(operation string, status int) error {
	message := fmt.Sprintf("http %d", status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return services.Wrap(services.ErrTransient, "material", operation, message, nil)
	}
	return services.Wrap(services.ErrFatal, "material", operation, message, nil)
}
