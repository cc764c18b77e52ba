package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scribe/config"
	"scribe/discordbot"
	"scribe/export"
	"scribe/llm"
	"scribe/registry"
	"scribe/setup"
	"scribe/stt"
	"scribe/web"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(discordCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(listTranscriptsCmd)

	rootCmd.PersistentFlags().String("discord-token", "", "Discord bot token")
	rootCmd.PersistentFlags().
		String("deepgram-api-key", "", "Deepgram API key")
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().String("openai-api-key", "", "OpenAI API key")
	rootCmd.PersistentFlags().
		String("stt-backend", "deepgram", "Transcription backend (deepgram, gemini)")
	rootCmd.PersistentFlags().
		String("participant-map", "", "YAML file mapping speaker IDs to display names")
	rootCmd.PersistentFlags().Int("web-port", 8080, "Web server port")

	viper.BindPFlag(
		"discord_token",
		rootCmd.PersistentFlags().Lookup("discord-token"),
	)
	viper.BindPFlag(
		"deepgram_api_key",
		rootCmd.PersistentFlags().Lookup("deepgram-api-key"),
	)
	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag(
		"openai_api_key",
		rootCmd.PersistentFlags().Lookup("openai-api-key"),
	)
	viper.BindPFlag(
		"stt_backend",
		rootCmd.PersistentFlags().Lookup("stt-backend"),
	)
	viper.BindPFlag(
		"participant_map",
		rootCmd.PersistentFlags().Lookup("participant-map"),
	)
	viper.BindPFlag("web_port", rootCmd.PersistentFlags().Lookup("web-port"))
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	config.SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %s\n", err)
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Scribe is a Discord bot for voice channel transcription",
	Long:  `Scribe joins a voice channel, transcribes each speaker, and assembles an ordered meeting transcript.`,
}

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Start the Discord bot",
	Run:   runDiscord,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively write config.yaml",
	Run: func(_ *cobra.Command, _ []string) {
		setup.RunSetup()
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <transcript-file>",
	Short: "Summarize a transcript file using OpenAI",
	Args:  cobra.ExactArgs(1),
	Run:   runSummarize,
}

var listTranscriptsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List transcript documents",
	Run:   runListTranscripts,
}

func runDiscord(_ *cobra.Command, _ []string) {
	cfg := config.Load()

	reg, err := registry.Load(cfg.ParticipantMap)
	if err != nil {
		logger.Warn("participant map unavailable, using raw speaker IDs",
			"error", err)
		reg = registry.New()
	}

	recognizer, err := stt.FromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("create transcription backend", "error", err)
	}

	exporter := export.NewWriter(cfg.TranscriptDir, logger)

	bot, err := discordbot.NewBot(cfg, recognizer, reg, exporter, logger)
	if err != nil {
		logger.Fatal("start bot", "error", err)
	}
	defer bot.Close()

	handler := web.NewHandler(bot, reg, logger)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.WebPort)
		logger.Info("web server listening", "addr", addr)
		if err := http.ListenAndServe(addr, handler.Routes()); err != nil {
			logger.Error("web server stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}

func runSummarize(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	path := args[0]
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(cfg.TranscriptDir, filepath.Base(args[0]))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("read transcript", "error", err)
	}

	summary, err := llm.SummarizeTranscript(
		cmd.Context(), cfg.OpenAIAPIKey, string(data),
	)
	if err != nil {
		logger.Fatal("summarize", "error", err)
	}

	rendered, err := glamour.Render(summary, "dark")
	if err != nil {
		fmt.Println(summary)
		return
	}
	fmt.Println(rendered)
}

func runListTranscripts(_ *cobra.Command, _ []string) {
	cfg := config.Load()

	entries, err := os.ReadDir(cfg.TranscriptDir)
	if err != nil {
		logger.Fatal("read transcript directory", "error", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"File", "Size", "Modified"})

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		table.Append([]string{
			e.Name(),
			fmt.Sprintf("%d", info.Size()),
			info.ModTime().Format("2006-01-02 15:04:05"),
		})
	}

	table.Render()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
