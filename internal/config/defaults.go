package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Paste: PasteConfig{Enable: true, Shortcut: "CTRL,V"},
		ASR: ASRConfig{
			Temperature:      1.0,
			MinBlankMargin:   0.0,
			HotwordBoost:     0.0,
			MaxTokensPerStep: 10,
			BeamWidth:        1,
		},
		Streaming: StreamingConfig{
			Enable:                   true,
			HistorySize:              3,
			CommitLagMs:              50,
			TimeBucketMs:             100,
			MaxUncommittedDurationMs: 1500,
		},
		ModelStore: ModelStoreConfig{
			Path:          "",
			AllowDownload: true,
		},
		Transcript: TranscriptConfig{
			TrailingSpace:       true,
			CapitalizeSentences: true,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "sotto-indicator",
			SoundEnable:    true,
			Height:         28,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Debug: DebugConfig{},
	}
}
