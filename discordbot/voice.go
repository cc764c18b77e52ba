package discordbot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"scribe/ogg"
	"scribe/segment"
)

type VoiceCall struct {
	sync.RWMutex
	Conn      *discordgo.VoiceConnection
	GuildID   string
	ChannelID string

	InboundAudioPackets chan *discordgo.Packet

	ssrcUsers  map[uint32]string
	decoders   map[uint32]*gopus.Decoder
	frameIndex map[uint32]int64
}

func (bot *Bot) joinVoiceCall(guildID, channelID string) error {
	bot.mu.Lock()
	defer bot.mu.Unlock()

	if bot.voice != nil {
		if err := bot.voice.Conn.Disconnect(); err != nil {
			return fmt.Errorf(
				"failed to disconnect from previous voice channel: %w",
				err,
			)
		}
	}

	// join muted: the bot only listens
	vc, err := bot.discord.ChannelVoiceJoin(guildID, channelID, true, false)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	bot.log.Info("joined", "channel", channelID)

	bot.voice = &VoiceCall{
		Conn:      vc,
		GuildID:   guildID,
		ChannelID: channelID,

		InboundAudioPackets: make(
			chan *discordgo.Packet,
			3*1000/20,
		), // 3 second audio buffer

		ssrcUsers:  make(map[uint32]string),
		decoders:   make(map[uint32]*gopus.Decoder),
		frameIndex: make(map[uint32]int64),
	}

	bot.voice.Conn.AddHandler(bot.handleVoiceSpeakingUpdate)

	go bot.acceptInboundAudioPackets(bot.voice)
	go bot.processInboundAudioPackets(bot.voice)

	return nil
}

func (bot *Bot) leaveVoiceCall() error {
	bot.mu.Lock()
	voice := bot.voice
	bot.voice = nil
	bot.controller = nil
	bot.mu.Unlock()

	if voice == nil {
		return nil
	}
	return voice.Conn.Disconnect()
}

func (bot *Bot) acceptInboundAudioPackets(voice *VoiceCall) {
	for packet := range voice.Conn.OpusRecv {
		select {
		case voice.InboundAudioPackets <- packet:
			// good
		default:
			bot.log.Warn(
				"voice packet channel full, dropping packet",
				"channelID", voice.ChannelID,
			)
		}
	}
	close(voice.InboundAudioPackets)
}

func (bot *Bot) processInboundAudioPackets(voice *VoiceCall) {
	for packet := range voice.InboundAudioPackets {
		if err := bot.processInboundAudioPacket(voice, packet); err != nil {
			bot.log.Error(
				"failed to process voice packet",
				"error", err.Error(),
				"channelID", voice.ChannelID,
			)
		}
	}
}

func (bot *Bot) processInboundAudioPacket(
	voice *VoiceCall,
	packet *discordgo.Packet,
) error {
	userID, ok := voice.userForSSRC(packet.SSRC)
	if !ok {
		// no speaking update for this ssrc yet, nothing to attribute
		return nil
	}

	bot.mu.Lock()
	controller := bot.controller
	bot.mu.Unlock()
	if controller == nil {
		return nil
	}

	pcm, err := voice.decode(packet)
	if err != nil {
		return fmt.Errorf("failed to decode opus packet: %w", err)
	}

	controller.HandleFrame(segment.Frame{
		Speaker:   userID,
		Index:     voice.nextFrameIndex(packet.SSRC),
		Timestamp: time.Now(),
		Opus:      packet.Opus,
		PCM:       pcm,
	})

	return nil
}

func (voice *VoiceCall) userForSSRC(ssrc uint32) (string, bool) {
	voice.RLock()
	userID, ok := voice.ssrcUsers[ssrc]
	voice.RUnlock()
	return userID, ok
}

func (voice *VoiceCall) decode(packet *discordgo.Packet) ([]int16, error) {
	voice.Lock()
	decoder, ok := voice.decoders[packet.SSRC]
	if !ok {
		var err error
		decoder, err = gopus.NewDecoder(ogg.SampleRate, ogg.Channels)
		if err != nil {
			voice.Unlock()
			return nil, err
		}
		voice.decoders[packet.SSRC] = decoder
	}
	voice.Unlock()

	return decoder.Decode(packet.Opus, 960, false)
}

func (voice *VoiceCall) nextFrameIndex(ssrc uint32) int64 {
	voice.Lock()
	defer voice.Unlock()
	voice.frameIndex[ssrc]++
	return voice.frameIndex[ssrc]
}

func (bot *Bot) handleVoiceSpeakingUpdate(
	_ *discordgo.VoiceConnection,
	v *discordgo.VoiceSpeakingUpdate,
) {
	bot.log.Debug(
		"state",
		"speaking", v.Speaking,
		"userID", v.UserID,
		"ssrc", v.SSRC,
	)

	bot.mu.Lock()
	voice := bot.voice
	bot.mu.Unlock()
	if voice == nil {
		return
	}

	voice.Lock()
	voice.ssrcUsers[uint32(v.SSRC)] = v.UserID
	voice.Unlock()
}

func (bot *Bot) handleVoiceStateUpdate(
	_ *discordgo.Session,
	v *discordgo.VoiceStateUpdate,
) {
	bot.mu.Lock()
	voice := bot.voice
	controller := bot.controller
	me := ""
	if bot.discord.State != nil && bot.discord.State.User != nil {
		me = bot.discord.State.User.ID
	}
	bot.mu.Unlock()

	if voice == nil {
		return
	}

	// the bot itself losing the channel forces a best-effort finalize
	if v.UserID == me && v.ChannelID == "" {
		bot.log.Warn("voice connection lost", "channel", voice.ChannelID)
		if controller != nil {
			go func() {
				ctx, cancel := context.WithTimeout(
					context.Background(), 2*time.Minute,
				)
				defer cancel()
				if _, err := controller.Disconnected(ctx); err != nil {
					bot.log.Error("forced finalize failed", "error", err)
				}
			}()
		}
		bot.mu.Lock()
		bot.voice = nil
		bot.controller = nil
		bot.mu.Unlock()
		return
	}

	// a participant leaving our channel flushes only their stream
	if controller != nil &&
		v.BeforeUpdate != nil &&
		v.BeforeUpdate.ChannelID == voice.ChannelID &&
		v.ChannelID != voice.ChannelID {
		bot.log.Info("participant left",
			"user", bot.getUsernameFromID(v.UserID))
		controller.SpeakerLeft(v.UserID)
	}
}
