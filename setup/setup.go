package setup

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// RunSetup walks through the keys the bot needs and writes config.yaml.
func RunSetup() {
	log.Info("Starting Scribe setup...")

	var discordToken, deepgramAPIKey, geminiAPIKey, openaiAPIKey string
	var participantMap string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Discord Bot Token").
				Value(&discordToken),
			huh.NewInput().
				Title("Enter your Deepgram API Key").
				Value(&deepgramAPIKey),
			huh.NewInput().
				Title("Enter your Gemini API Key (optional)").
				Value(&geminiAPIKey),
			huh.NewInput().
				Title("Enter your OpenAI API Key (for summaries)").
				Value(&openaiAPIKey),
			huh.NewInput().
				Title("Path to participant name map (optional YAML)").
				Value(&participantMap),
		),
	)

	if err := form.Run(); err != nil {
		log.Fatal("Error during setup", "error", err)
	}

	viper.Set("discord_token", discordToken)
	viper.Set("deepgram_api_key", deepgramAPIKey)
	viper.Set("gemini_api_key", geminiAPIKey)
	viper.Set("openai_api_key", openaiAPIKey)
	viper.Set("participant_map", participantMap)

	if err := viper.WriteConfigAs("config.yaml"); err != nil {
		log.Fatal("Error saving configuration", "error", err)
	}

	log.Info("Setup completed successfully!")
}
