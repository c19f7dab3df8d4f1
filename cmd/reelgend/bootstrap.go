package main

import (
	"log"

	"reelgen/internal/config"
	"reelgen/internal/providers/assemble"
	"reelgen/internal/providers/material"
	"reelgen/internal/providers/script"
	"reelgen/internal/providers/subtitle"
	"reelgen/internal/providers/tts"
	"reelgen/internal/stage"
)

func buildRegistry(cfg *config.Config) *stage.Registry {
	registry := stage.NewRegistry()
	providers := []stage.Provider{
		script.NewProvider(cfg.Script),
		tts.NewProvider(cfg.TTS),
		subtitle.NewProvider(cfg.Subtitles, cfg.Assembly.FFprobeBinary),
		material.NewProvider(cfg.Materials),
		assemble.NewProvider(cfg.Assembly, cfg.Subtitles),
	}
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			log.Fatalf("register stage provider: %v", err)
		}
	}
	return registry
}
