// Package subtitle produces an SRT file for the narration audio. Cue timing
// is allocated proportionally to cue text length across the audio duration
// reported by ffprobe.
package subtitle

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reelgen/internal/config"
	"reelgen/internal/providers/script"
	"reelgen/internal/services"
	"reelgen/internal/stage"
	"reelgen/internal/task"
)

const (
	artifactName      = "subtitle.srt"
	defaultCueLength  = 42
	defaultFFprobeBin = "ffprobe"
)

// Provider implements the subtitle stage.
type Provider struct {
	cfg        config.Subtitles
	ffprobeBin string

	// probeDuration is swapped out in tests to avoid a real ffprobe.
	probeDuration func(ctx context.Context, path string) (time.Duration, error)
}

// NewProvider builds the subtitle provider.
func NewProvider(cfg config.Subtitles, ffprobeBin string) *Provider {
	if strings.TrimSpace(ffprobeBin) == "" {
		ffprobeBin = defaultFFprobeBin
	}
	p := &Provider{cfg: cfg, ffprobeBin: ffprobeBin}
	p.probeDuration = p.ffprobeDuration
	return p
}

func (p *Provider) Name() string { return "subtitle" }

// Generate writes subtitle.srt to the workdir from the script text and the
// audio duration.
func (p *Provider) Generate(ctx context.Context, req *stage.Request) (task.Artifact, error) {
	scriptPath, ok := req.Input("script")
	if !ok {
		return "", services.Wrap(services.ErrFatal, "subtitle", "generate", "script artifact missing", nil)
	}
	audioPath, ok := req.Input("audio")
	if !ok {
		return "", services.Wrap(services.ErrFatal, "subtitle", "generate", "audio artifact missing", nil)
	}

	doc, err := script.LoadDocument(string(scriptPath))
	if err != nil {
		return "", services.Wrap(services.ErrFatal, "subtitle", "generate", "load script artifact", err)
	}

	duration, err := p.probeDuration(ctx, string(audioPath))
	if err != nil {
		return "", err
	}
	if duration <= 0 {
		return "", services.Wrap(services.ErrFatal, "subtitle", "generate", "audio has zero duration", nil)
	}

	cues := SplitCues(doc.Text(), p.maxCueLength())
	if len(cues) == 0 {
		return "", services.Wrap(services.ErrFatal, "subtitle", "generate", "no subtitle cues produced", nil)
	}

	path := filepath.Join(req.WorkDir, artifactName)
	if err := os.WriteFile(path, []byte(RenderSRT(cues, duration)), 0o644); err != nil {
		return "", services.Wrap(services.ErrFatal, "subtitle", "generate", "write subtitle artifact", err)
	}
	return task.Artifact(path), nil
}

// HealthCheck verifies ffprobe is available.
func (p *Provider) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(p.ffprobeBin); err != nil {
		return stage.Unhealthy("subtitle", fmt.Sprintf("ffprobe not found: %v", err))
	}
	return stage.Healthy("subtitle")
}

func (p *Provider) maxCueLength() int {
	if p.cfg.MaxCueLength > 0 {
		return p.cfg.MaxCueLength
	}
	return defaultCueLength
}

func (p *Provider) ffprobeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, services.Wrap(services.ErrFatal, "subtitle", "probe", "ffprobe failed", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrFatal, "subtitle", "probe", "unparseable ffprobe duration", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// SplitCues breaks narration text into subtitle cues no longer than
// maxLength runes, preferring sentence boundaries and falling back to word
// boundaries for long sentences.
func SplitCues(text string, maxLength int) []string {
	var cues []string
	for _, sentence := range splitSentences(text) {
		if len([]rune(sentence)) <= maxLength {
			cues = append(cues, sentence)
			continue
		}
		cues = append(cues, wrapWords(sentence, maxLength)...)
	}
	return cues
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range strings.TrimSpace(text) {
		current.WriteRune(r)
		switch r {
		case '.', '!', '?', '。', '！', '？':
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func wrapWords(sentence string, maxLength int) []string {
	var cues []string
	var current strings.Builder
	for _, word := range strings.Fields(sentence) {
		candidate := word
		if current.Len() > 0 {
			candidate = current.String() + " " + word
		}
		if len([]rune(candidate)) > maxLength && current.Len() > 0 {
			cues = append(cues, current.String())
			current.Reset()
			current.WriteString(word)
			continue
		}
		current.Reset()
		current.WriteString(candidate)
	}
	if current.Len() > 0 {
		cues = append(cues, current.String())
	}
	return cues
}

// RenderSRT formats cues as SRT, allocating the audio duration across cues
// proportionally to their text length.
func RenderSRT(cues []string, total time.Duration) string {
	totalRunes := 0
	for _, cue := range cues {
		totalRunes += len([]rune(cue))
	}
	if totalRunes == 0 {
		return ""
	}

	var sb strings.Builder
	elapsed := time.Duration(0)
	for i, cue := range cues {
		share := time.Duration(float64(total) * float64(len([]rune(cue))) / float64(totalRunes))
		start := elapsed
		end := elapsed + share
		if i == len(cues)-1 {
			end = total
		}
		elapsed = end

		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("\n")
		sb.WriteString(formatTimestamp(start))
		sb.WriteString(" --> ")
		sb.WriteString(formatTimestamp(end))
		sb.WriteString("\n")
		sb.WriteString(cue)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	millis := (d - seconds*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
