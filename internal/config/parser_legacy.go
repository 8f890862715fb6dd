package config

import (
	"fmt"
	"strconv"
	"strings"
)

// parseLegacy parses the deprecated flat key=value config format, one
// setting per line, dotted keys addressing nested sections
// (e.g. "paste.enable = false"). Blank lines and lines starting with "#"
// are ignored.
func parseLegacy(content string, base Config) (Config, []Warning, error) {
	cfg := base

	for i, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			return Config{}, nil, fmt.Errorf("line %d: expected key = value, got %q", i+1, line)
		}

		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" {
			return Config{}, nil, fmt.Errorf("line %d: empty key", i+1)
		}

		if err := applyLegacyKey(&cfg, key, value); err != nil {
			return Config{}, nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func applyLegacyKey(cfg *Config, key, value string) error {
	switch key {
	case "audio.input":
		cfg.Audio.Input = value
	case "audio.fallback":
		cfg.Audio.Fallback = value
	case "paste.enable":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("paste.enable: %w", err)
		}
		cfg.Paste.Enable = b
	case "paste.shortcut":
		cfg.Paste.Shortcut = value
	case "asr.temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("asr.temperature: %w", err)
		}
		cfg.ASR.Temperature = f
	case "asr.min_blank_margin":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("asr.min_blank_margin: %w", err)
		}
		cfg.ASR.MinBlankMargin = f
	case "asr.hotword_boost":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("asr.hotword_boost: %w", err)
		}
		cfg.ASR.HotwordBoost = f
	case "asr.beam_width":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("asr.beam_width: %w", err)
		}
		cfg.ASR.BeamWidth = n
	case "streaming.enable":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("streaming.enable: %w", err)
		}
		cfg.Streaming.Enable = b
	case "model_store.path":
		cfg.ModelStore.Path = value
	case "transcript.trailing_space":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("transcript.trailing_space: %w", err)
		}
		cfg.Transcript.TrailingSpace = b
	case "transcript.capitalize_sentences":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("transcript.capitalize_sentences: %w", err)
		}
		cfg.Transcript.CapitalizeSentences = b
	case "indicator.enable":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("indicator.enable: %w", err)
		}
		cfg.Indicator.Enable = b
	case "indicator.backend":
		cfg.Indicator.Backend = value
	case "clipboard_cmd":
		argv, err := parseArgv(value)
		if err != nil {
			return fmt.Errorf("clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: value, Argv: argv}
	case "paste_cmd":
		argv, err := parseArgv(value)
		if err != nil {
			return fmt.Errorf("paste_cmd: %w", err)
		}
		cfg.PasteCmd = CommandConfig{Raw: value, Argv: argv}
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}
