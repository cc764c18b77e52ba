package config

import (
	"time"

	"github.com/spf13/viper"
)

// Capture holds the policy knobs for audio segmentation and dispatch.
// The silence gap and utterance cap are deliberately configuration, not
// constants: the right values depend on how people talk in a channel.
type Capture struct {
	SilenceGap      time.Duration
	MaxUtterance    time.Duration
	Concurrency     int
	Retries         int
	Backoff         time.Duration
	CallTimeout     time.Duration
	EnergyThresh    float64
	AmplitudeThresh float64
}

type Config struct {
	DiscordToken   string
	DeepgramAPIKey string
	GeminiAPIKey   string
	OpenAIAPIKey   string

	Backend        string
	ParticipantMap string
	TranscriptDir  string
	WebPort        int

	Capture Capture
}

func SetDefaults() {
	viper.SetDefault("stt_backend", "deepgram")
	viper.SetDefault("transcript_dir", ".logs/transcripts")
	viper.SetDefault("web_port", 8080)
	viper.SetDefault("silence_gap_ms", 1000)
	viper.SetDefault("max_utterance_ms", 30000)
	viper.SetDefault("stt_concurrency", 4)
	viper.SetDefault("stt_retries", 3)
	viper.SetDefault("stt_backoff_ms", 500)
	viper.SetDefault("stt_timeout_s", 60)
	viper.SetDefault("vad_energy_thresh", 0.0005)
	viper.SetDefault("vad_amplitude_thresh", 0.015)
}

func Load() *Config {
	return &Config{
		DiscordToken:   viper.GetString("discord_token"),
		DeepgramAPIKey: viper.GetString("deepgram_api_key"),
		GeminiAPIKey:   viper.GetString("gemini_api_key"),
		OpenAIAPIKey:   viper.GetString("openai_api_key"),

		Backend:        viper.GetString("stt_backend"),
		ParticipantMap: viper.GetString("participant_map"),
		TranscriptDir:  viper.GetString("transcript_dir"),
		WebPort:        viper.GetInt("web_port"),

		Capture: Capture{
			SilenceGap:      time.Duration(viper.GetInt("silence_gap_ms")) * time.Millisecond,
			MaxUtterance:    time.Duration(viper.GetInt("max_utterance_ms")) * time.Millisecond,
			Concurrency:     viper.GetInt("stt_concurrency"),
			Retries:         viper.GetInt("stt_retries"),
			Backoff:         time.Duration(viper.GetInt("stt_backoff_ms")) * time.Millisecond,
			CallTimeout:     time.Duration(viper.GetInt("stt_timeout_s")) * time.Second,
			EnergyThresh:    viper.GetFloat64("vad_energy_thresh"),
			AmplitudeThresh: viper.GetFloat64("vad_amplitude_thresh"),
		},
	}
}
