// Package discordbot is the chat-platform collaborator: it joins voice
// channels, receives per-speaker opus packets, and drives the capture
// session with speaker-tagged frames.
package discordbot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"scribe/assemble"
	"scribe/config"
	"scribe/etc"
	"scribe/registry"
	"scribe/session"
	"scribe/stt"
)

type Bot struct {
	mu sync.Mutex

	cfg *config.Config
	log *log.Logger

	discord    *discordgo.Session
	recognizer stt.Recognizer
	registry   *registry.Registry
	exporter   session.Exporter

	voice      *VoiceCall
	controller *session.Controller
}

func NewBot(
	cfg *config.Config,
	recognizer stt.Recognizer,
	reg *registry.Registry,
	exporter session.Exporter,
	logger *log.Logger,
) (*Bot, error) {
	discord, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	bot := &Bot{
		cfg:        cfg,
		log:        logger,
		discord:    discord,
		recognizer: recognizer,
		registry:   reg,
		exporter:   exporter,
	}

	discord.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	discord.AddHandler(bot.handleGuildCreate)
	discord.AddHandler(bot.handleInteractionCreate)
	discord.AddHandler(bot.handleVoiceStateUpdate)

	if err := discord.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	bot.log.Info("bot connected")
	return bot, nil
}

func (bot *Bot) Close() error {
	bot.mu.Lock()
	voice := bot.voice
	controller := bot.controller
	bot.mu.Unlock()

	if controller != nil && controller.State() == session.StateCapturing {
		ctx, cancel := context.WithTimeout(
			context.Background(), 2*time.Minute,
		)
		defer cancel()
		if _, err := controller.Disconnected(ctx); err != nil {
			bot.log.Error("failed to finalize on shutdown", "error", err)
		}
	}

	if voice != nil {
		if err := voice.Conn.Disconnect(); err != nil {
			bot.log.Warn("failed to disconnect voice", "error", err)
		}
	}

	return bot.discord.Close()
}

// Snapshot exposes the live transcript; empty when no session runs.
func (bot *Bot) Snapshot() assemble.Transcript {
	bot.mu.Lock()
	controller := bot.controller
	bot.mu.Unlock()
	if controller == nil {
		return assemble.Transcript{}
	}
	return controller.Snapshot()
}

func (bot *Bot) handleGuildCreate(
	s *discordgo.Session,
	m *discordgo.GuildCreate,
) {
	bot.log.Info("guild", "id", m.ID, "name", m.Name)
	bot.registerCommands(s, m.ID)
}

func (bot *Bot) newController() *session.Controller {
	return session.NewController(
		etc.NewFreshID(),
		bot.cfg.Capture,
		bot.recognizer,
		bot.registry,
		bot.exporter,
		bot.log,
	)
}

func (bot *Bot) getUsernameFromID(userID string) string {
	user, err := bot.discord.User(userID)
	if err != nil {
		bot.log.Error("Failed to get username", "userID", userID, "error", err)
		return userID
	}
	return user.Username
}
