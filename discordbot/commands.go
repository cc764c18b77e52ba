package discordbot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"

	"scribe/llm"
	"scribe/session"
)

var commandDefinitions = []*discordgo.ApplicationCommand{
	{
		Name:        "connect",
		Description: "Connect Scribe to your voice channel.",
	},
	{
		Name:        "scribe",
		Description: "Start transcribing the voice channel.",
	},
	{
		Name:        "stop",
		Description: "Stop transcription and get results.",
	},
	{
		Name:        "disconnect",
		Description: "Disconnect from voice channel.",
	},
	{
		Name:        "participants",
		Description: "Reload the participant name map.",
	},
	{
		Name:        "summarize",
		Description: "Generate an AI summary of a transcript file.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "transcript_file",
				Description: "File name under the transcript directory",
				Required:    true,
			},
		},
	},
	{
		Name:        "help",
		Description: "Show the help message.",
	},
}

func (bot *Bot) registerCommands(s *discordgo.Session, guildID string) {
	for _, def := range commandDefinitions {
		_, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, def)
		if err != nil {
			bot.log.Error("command", "name", def.Name, "error", err)
		}
	}
}

func (bot *Bot) handleInteractionCreate(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) {
	if m.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch m.ApplicationCommandData().Name {
	case "connect":
		bot.handleConnect(s, m)
	case "scribe":
		bot.handleScribe(s, m)
	case "stop":
		bot.handleStop(s, m)
	case "disconnect":
		bot.handleDisconnect(s, m)
	case "participants":
		bot.handleParticipants(s, m)
	case "summarize":
		bot.handleSummarize(s, m)
	case "help":
		bot.handleHelp(s, m)
	}
}

func (bot *Bot) respond(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
	content string,
	ephemeral bool,
) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(m.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		bot.log.Error("couldn't send response", "error", err)
	}
}

func (bot *Bot) deferResponse(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) bool {
	err := s.InteractionRespond(m.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		bot.log.Error("couldn't defer response", "error", err)
		return false
	}
	return true
}

func (bot *Bot) followUp(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
	content string,
) {
	if len(content) > 1900 {
		content = content[:1900] + "\n..."
	}
	_, err := s.FollowupMessageCreate(m.Interaction, true,
		&discordgo.WebhookParams{Content: content})
	if err != nil {
		bot.log.Error("couldn't send followup", "error", err)
	}
}

func (bot *Bot) handleConnect(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) {
	voiceState, err := s.State.VoiceState(m.GuildID, m.Member.User.ID)
	if err != nil || voiceState == nil || voiceState.ChannelID == "" {
		bot.respond(s, m, "Please join a voice channel first.", true)
		return
	}

	bot.mu.Lock()
	alreadyConnected := bot.voice != nil
	bot.mu.Unlock()
	if alreadyConnected {
		bot.respond(s, m, "I'm already connected to a voice channel.", true)
		return
	}

	if err := bot.joinVoiceCall(m.GuildID, voiceState.ChannelID); err != nil {
		bot.respond(s, m, fmt.Sprintf("%v", err), true)
		return
	}

	controller := bot.newController()
	if err := controller.Connect(); err != nil {
		bot.respond(s, m, fmt.Sprintf("%v", err), true)
		return
	}

	bot.mu.Lock()
	bot.controller = controller
	bot.mu.Unlock()

	bot.respond(s, m,
		"Connected successfully. Ready to transcribe your meeting.", false)
}

func (bot *Bot) handleScribe(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) {
	bot.mu.Lock()
	controller := bot.controller
	bot.mu.Unlock()

	if controller == nil {
		bot.respond(s, m,
			"I'm not connected to your voice channel. Please use /connect first.",
			true)
		return
	}

	switch controller.State() {
	case session.StateCapturing:
		bot.respond(s, m,
			"Already transcribing. Please wait for current session to complete.",
			true)
		return
	case session.StateFinalized:
		// previous session is done, a fresh one starts here
		controller = bot.newController()
		if err := controller.Connect(); err != nil {
			bot.respond(s, m, fmt.Sprintf("%v", err), true)
			return
		}
		bot.mu.Lock()
		bot.controller = controller
		bot.mu.Unlock()
	}

	if err := controller.StartCapture(); err != nil {
		bot.respond(s, m, fmt.Sprintf("%v", err), true)
		return
	}

	bot.respond(s, m,
		"Transcription started. All audio will be recorded and transcribed.",
		false)
}

func (bot *Bot) handleStop(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) {
	bot.mu.Lock()
	controller := bot.controller
	bot.mu.Unlock()

	if controller == nil || controller.State() != session.StateCapturing {
		bot.respond(s, m, "No active transcription session found.", true)
		return
	}

	if !bot.deferResponse(s, m) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), 2*time.Minute,
		)
		defer cancel()

		transcript, err := controller.Stop(ctx)
		if err != nil {
			bot.log.Error("failed to stop session", "error", err)
			bot.followUp(s, m, fmt.Sprintf("Stopped with errors: %v", err))
			return
		}

		bot.followUp(s, m, fmt.Sprintf(
			"Transcription stopped. Session recorded successfully (%d utterances).",
			len(transcript),
		))
	}()
}

func (bot *Bot) handleDisconnect(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) {
	bot.mu.Lock()
	connected := bot.voice != nil
	controller := bot.controller
	bot.mu.Unlock()

	if !connected {
		bot.respond(s, m, "I'm not connected to your voice channel.", true)
		return
	}

	if controller != nil && controller.State() == session.StateCapturing {
		ctx, cancel := context.WithTimeout(
			context.Background(), 2*time.Minute,
		)
		defer cancel()
		if _, err := controller.Stop(ctx); err != nil {
			bot.log.Error("failed to finalize before disconnect", "error", err)
		}
	}

	if err := bot.leaveVoiceCall(); err != nil {
		bot.respond(s, m, "Connection error. Please try reconnecting.", true)
		return
	}

	bot.respond(s, m,
		"Disconnected successfully. Thank you for using Scribe.", false)
}

func (bot *Bot) handleParticipants(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) {
	bot.mu.Lock()
	controller := bot.controller
	bot.mu.Unlock()

	var err error
	if controller != nil {
		err = controller.UpdateParticipants(bot.cfg.ParticipantMap)
	} else {
		err = bot.registry.Reload(bot.cfg.ParticipantMap)
	}

	if errors.Is(err, session.ErrCapturing) {
		bot.respond(s, m,
			"Can't reload the participant map while transcribing.", true)
		return
	}
	if err != nil {
		bot.respond(s, m, fmt.Sprintf("Reload failed: %v", err), true)
		return
	}

	bot.respond(s, m, fmt.Sprintf(
		"Participant map reloaded (%d names).", bot.registry.Len(),
	), true)
}

func (bot *Bot) handleSummarize(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) {
	options := m.ApplicationCommandData().Options
	if len(options) == 0 {
		bot.respond(s, m, "Please provide a transcript file name.", true)
		return
	}
	name := filepath.Base(options[0].StringValue())

	data, err := os.ReadFile(filepath.Join(bot.cfg.TranscriptDir, name))
	if err != nil {
		files := bot.availableTranscripts()
		if files == "" {
			bot.respond(s, m, "Transcript file not found.", true)
		} else {
			bot.respond(s, m,
				"Transcript file not found. Available files:\n```\n"+files+"```",
				true)
		}
		return
	}

	if !bot.deferResponse(s, m) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), 2*time.Minute,
		)
		defer cancel()

		summary, err := llm.SummarizeTranscript(
			ctx, bot.cfg.OpenAIAPIKey, string(data),
		)
		if err != nil {
			bot.followUp(s, m, fmt.Sprintf("Failed to generate summary: %v", err))
			return
		}
		bot.followUp(s, m, summary)
	}()
}

func (bot *Bot) availableTranscripts() string {
	entries, err := os.ReadDir(bot.cfg.TranscriptDir)
	if err != nil {
		return ""
	}
	var out string
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out += e.Name() + "\n"
		count++
		if count >= 10 {
			break
		}
	}
	return out
}

func (bot *Bot) handleHelp(
	s *discordgo.Session,
	m *discordgo.InteractionCreate,
) {
	embed := &discordgo.MessageEmbed{
		Title:       "Scribe Help",
		Description: "Voice channel transcription assistant.",
		Color:       0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "/connect", Value: "Connect to your voice channel.", Inline: true},
			{Name: "/disconnect", Value: "Disconnect from your voice channel.", Inline: true},
			{Name: "/scribe", Value: "Start voice transcription.", Inline: true},
			{Name: "/stop", Value: "Stop transcription and save results.", Inline: true},
			{Name: "/participants", Value: "Reload the participant name map.", Inline: true},
			{Name: "/summarize", Value: "Generate AI summary of a transcript file.", Inline: true},
		},
	}

	err := s.InteractionRespond(m.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		bot.log.Error("couldn't send help", "error", err)
	}
}

