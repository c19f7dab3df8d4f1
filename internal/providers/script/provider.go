// Package script generates the narration script and stock-footage search
// terms for a task, either from a configured LLM endpoint or from a
// prewritten script supplied at task creation.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelgen/internal/config"
	"reelgen/internal/services"
	"reelgen/internal/stage"
	"reelgen/internal/task"
)

const artifactName = "script.json"

// Document is the script stage artifact written to the task workdir.
type Document struct {
	Topic       string   `json:"topic"`
	Language    string   `json:"language,omitempty"`
	Paragraphs  []string `json:"paragraphs"`
	SearchTerms []string `json:"search_terms"`
}

// Text joins the paragraphs into the narration text.
func (d Document) Text() string {
	return strings.Join(d.Paragraphs, "\n\n")
}

// LoadDocument reads a script artifact back from disk.
func LoadDocument(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read script document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("parse script document: %w", err)
	}
	return doc, nil
}

// Provider implements the script stage.
type Provider struct {
	cfg    config.Script
	client *Client
}

// NewProvider builds the script provider from configuration.
func NewProvider(cfg config.Script) *Provider {
	return &Provider{
		cfg:    cfg,
		client: NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.TimeoutSeconds),
	}
}

func (p *Provider) Name() string { return "script" }

// Generate produces script.json in the task workdir. A prewritten script in
// the task params bypasses the LLM entirely; search terms are then derived
// from the topic and script text.
func (p *Provider) Generate(ctx context.Context, req *stage.Request) (task.Artifact, error) {
	var doc Document
	var err error
	if strings.TrimSpace(req.Params.Script) != "" {
		doc = p.documentFromPrewritten(req.Params)
	} else {
		doc, err = p.generateDocument(ctx, req.Params)
		if err != nil {
			return "", err
		}
	}

	if len(doc.Paragraphs) == 0 {
		return "", services.Wrap(services.ErrFatal, "script", "generate", "produced an empty script", nil)
	}
	if len(doc.SearchTerms) == 0 {
		doc.SearchTerms = fallbackSearchTerms(req.Params.Topic, p.searchTermCount())
	}

	path := filepath.Join(req.WorkDir, artifactName)
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode script document: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", services.Wrap(services.ErrFatal, "script", "generate", "write script artifact", err)
	}
	return task.Artifact(path), nil
}

// HealthCheck verifies the provider has an API key unless tasks are expected
// to always carry prewritten scripts.
func (p *Provider) HealthCheck(context.Context) stage.Health {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return stage.Unhealthy("script", "no API key configured; only prewritten scripts will work")
	}
	return stage.Healthy("script")
}

func (p *Provider) documentFromPrewritten(params task.Params) Document {
	paragraphs := splitParagraphs(params.Script)
	return Document{
		Topic:      params.Topic,
		Language:   params.Language,
		Paragraphs: paragraphs,
	}
}

type modelScript struct {
	Paragraphs  []string `json:"paragraphs"`
	SearchTerms []string `json:"search_terms"`
}

func (p *Provider) generateDocument(ctx context.Context, params task.Params) (Document, error) {
	paragraphs := p.cfg.ParagraphCount
	if paragraphs <= 0 {
		paragraphs = 3
	}
	userPrompt := fmt.Sprintf(
		"Topic: %s\nParagraphs: %d\nSearch terms: %d\nLanguage: %s",
		params.Topic, paragraphs, p.searchTermCount(), languageOrDefault(params.Language),
	)
	content, err := p.client.CompleteJSON(ctx, generationPrompt, userPrompt)
	if err != nil {
		return Document{}, err
	}

	var parsed modelScript
	if err := DecodeModelJSON(content, &parsed); err != nil {
		// Malformed model output is worth one more attempt.
		return Document{}, services.Wrap(services.ErrTransient, "script", "generate", "model returned malformed JSON", err)
	}
	return Document{
		Topic:       params.Topic,
		Language:    params.Language,
		Paragraphs:  cleanStrings(parsed.Paragraphs),
		SearchTerms: cleanStrings(parsed.SearchTerms),
	}, nil
}

func (p *Provider) searchTermCount() int {
	if p.cfg.SearchTerms > 0 {
		return p.cfg.SearchTerms
	}
	return 5
}

const generationPrompt = `You write narration scripts for short vertical videos.
Respond with JSON only: {"paragraphs": ["..."], "search_terms": ["..."]}.
Paragraphs are plain spoken prose with no headings, markdown, or scene
directions. Search terms are short noun phrases suitable for a stock-footage
search, in English regardless of the script language.`

func languageOrDefault(language string) string {
	if strings.TrimSpace(language) == "" {
		return "en"
	}
	return language
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(block); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

func cleanStrings(values []string) []string {
	var cleaned []string
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func fallbackSearchTerms(topic string, limit int) []string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return []string{"abstract background"}
	}
	terms := []string{topic}
	for _, word := range strings.Fields(topic) {
		if len(terms) >= limit {
			break
		}
		word = strings.Trim(word, ".,!?\"'")
		if len(word) > 3 && !strings.EqualFold(word, topic) {
			terms = append(terms, word)
		}
	}
	return terms
}
