package config

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: Server{
			Port:                  "5001",
			PublicDir:             "public",
			UploadsDir:            "uploads",
			MaxUploadMB:           10,
			RequestTimeoutSeconds: 600,
		},
		Gemini: Gemini{
			Model:               "gemini-1.5-pro-latest",
			Instruction:         "Generate a transcript of the speech.",
			PollIntervalSeconds: 10,
		},
		ElevenLabs: ElevenLabs{
			BaseURL:        "https://api.elevenlabs.io/v1",
			TimeoutSeconds: 60,
		},
		Pipeline: Pipeline{
			MaxTranscriptChars: 5000,
			RetryAttempts:      3,
			RetryBaseSeconds:   2,
			FFmpegPath:         "ffmpeg",
			BatchWorkers:       2,
		},
		Storage: Storage{
			Backend: "local",
		},
		Registry: Registry{
			Backend: "badger",
			Dir:     "data/registry",
		},
	}
}
