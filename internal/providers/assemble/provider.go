// Package assemble renders the final video with ffmpeg: stock clips are
// concatenated, scaled to the target resolution, muxed with the narration
// audio, and optionally burned with subtitles.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"reelgen/internal/config"
	"reelgen/internal/services"
	"reelgen/internal/stage"
	"reelgen/internal/task"
)

const (
	artifactName     = "final.mp4"
	defaultFFmpegBin = "ffmpeg"
	concatListName   = "concat.txt"
	stderrTailRunes  = 400
)

// Provider implements the assembly stage.
type Provider struct {
	cfg       config.Assembly
	subtitles config.Subtitles

	// runCommand is swapped out in tests to avoid a real ffmpeg.
	runCommand func(ctx context.Context, bin string, args []string) error
}

// NewProvider builds the assembly provider.
func NewProvider(cfg config.Assembly, subtitles config.Subtitles) *Provider {
	if strings.TrimSpace(cfg.FFmpegBinary) == "" {
		cfg.FFmpegBinary = defaultFFmpegBin
	}
	p := &Provider{cfg: cfg, subtitles: subtitles}
	p.runCommand = runFFmpeg
	return p
}

func (p *Provider) Name() string { return "assembly" }

// Generate renders final.mp4 into the task workdir.
func (p *Provider) Generate(ctx context.Context, req *stage.Request) (task.Artifact, error) {
	audioPath, ok := req.Input("audio")
	if !ok {
		return "", services.Wrap(services.ErrFatal, "assembly", "render", "audio artifact missing", nil)
	}
	materialsDir, ok := req.Input("material")
	if !ok {
		return "", services.Wrap(services.ErrFatal, "assembly", "render", "material artifact missing", nil)
	}

	clips, err := listClips(string(materialsDir))
	if err != nil {
		return "", err
	}
	if len(clips) == 0 {
		return "", services.Wrap(services.ErrFatal, "assembly", "render", "no clips in materials directory", nil)
	}

	width, height, err := config.ParseResolution(p.resolution(req.Params.Resolution))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "assembly", "render", "invalid resolution", err)
	}

	concatPath := filepath.Join(req.WorkDir, concatListName)
	if err := writeConcatList(concatPath, clips); err != nil {
		return "", err
	}

	output := filepath.Join(req.WorkDir, artifactName)
	args := p.renderArgs(concatPath, string(audioPath), req, width, height, output)

	if err := p.runCommand(ctx, p.cfg.FFmpegBinary, args); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", services.Wrap(services.ErrFatal, "assembly", "render", "ffmpeg failed", err)
	}
	if _, err := os.Stat(output); err != nil {
		return "", services.Wrap(services.ErrFatal, "assembly", "render", "ffmpeg produced no output", err)
	}
	return task.Artifact(output), nil
}

// HealthCheck verifies ffmpeg is available.
func (p *Provider) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(p.cfg.FFmpegBinary); err != nil {
		return stage.Unhealthy("assembly", fmt.Sprintf("ffmpeg not found: %v", err))
	}
	return stage.Healthy("assembly")
}

func (p *Provider) resolution(requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	if len(p.cfg.Resolutions) > 0 {
		return p.cfg.Resolutions[0]
	}
	return "1080x1920"
}

func (p *Provider) renderArgs(concatPath, audioPath string, req *stage.Request, width, height int, output string) []string {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		width, height, width, height,
	)
	if subtitlePath, ok := req.Input("subtitle"); ok && p.subtitles.Enabled {
		style := subtitleStyle(p.subtitles)
		filter += fmt.Sprintf(",subtitles=%s%s", escapeFilterPath(string(subtitlePath)), style)
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", concatPath,
		"-i", audioPath,
		"-vf", filter,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-shortest",
	}
	if p.cfg.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(p.cfg.Threads))
	}
	return append(args, output)
}

func subtitleStyle(cfg config.Subtitles) string {
	var parts []string
	if cfg.FontName != "" {
		parts = append(parts, "FontName="+cfg.FontName)
	}
	if cfg.FontSize > 0 {
		parts = append(parts, "Fontsize="+strconv.Itoa(cfg.FontSize))
	}
	if len(parts) == 0 {
		return ""
	}
	return ":force_style='" + strings.Join(parts, ",") + "'"
}

func escapeFilterPath(path string) string {
	// ffmpeg filter arguments treat ':' as an option separator.
	return strings.ReplaceAll(path, ":", "\\:")
}

func listClips(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, "assembly", "render", "read materials directory", err)
	}
	var clips []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}
		clips = append(clips, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(clips)
	return clips, nil
}

func writeConcatList(path string, clips []string) error {
	var sb strings.Builder
	for _, clip := range clips {
		sb.WriteString("file '")
		sb.WriteString(strings.ReplaceAll(clip, "'", "'\\''"))
		sb.WriteString("'\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return services.Wrap(services.ErrFatal, "assembly", "render", "write concat list", err)
	}
	return nil
}

func runFFmpeg(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", err, tail(string(out), stderrTailRunes))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return "..." + string(runes[len(runes)-n:])
}
