// Package discord mirrors the public display into a Discord text channel as
// a single embed that is edited in place.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/versecue/internal/display"
)

const (
	colorScripture = 0x3498DB
	colorSong      = 0x9B59B6
	colorCleared   = 0x95A5A6

	// maxDescription is Discord's embed description limit.
	maxDescription = 4096
)

// Messenger is the subset of *discordgo.Session the surface uses.
type Messenger interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var (
	_ display.Surface = (*Surface)(nil)
	_ Messenger       = (*discordgo.Session)(nil)
)

// Surface implements [display.Surface] on a Discord channel. The first push
// creates the embed message; later pushes edit it.
type Surface struct {
	mu        sync.Mutex
	session   Messenger
	bot       *discordgo.Session
	channelID string
	messageID string
}

// New returns a Surface posting to channelID through m.
func New(m Messenger, channelID string) *Surface {
	return &Surface{session: m, channelID: channelID}
}

// Open connects a bot session with token and returns a Surface for
// channelID. Close releases the gateway connection.
func Open(token, channelID string) (*Surface, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("discord display: token and channel id are required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord display: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord display: open session: %w", err)
	}
	surf := New(s, channelID)
	surf.bot = s
	return surf, nil
}

// Close closes the gateway connection opened by [Open].
func (s *Surface) Close() error {
	if s.bot == nil {
		return nil
	}
	return s.bot.Close()
}

// Push implements [display.Surface].
func (s *Surface) Push(ctx context.Context, p display.Payload) error {
	embed := BuildEmbed(p)
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.messageID != "" {
		if _, err := s.session.ChannelMessageEditEmbed(s.channelID, s.messageID, embed, opts...); err == nil {
			return nil
		}
		// The message may have been deleted in Discord; post a new one.
		s.messageID = ""
	}
	msg, err := s.session.ChannelMessageSendEmbed(s.channelID, embed, opts...)
	if err != nil {
		return fmt.Errorf("discord display: send embed: %w", err)
	}
	s.messageID = msg.ID
	return nil
}

// BuildEmbed renders p as a Discord embed.
func BuildEmbed(p display.Payload) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{}
	if !p.At.IsZero() {
		e.Timestamp = p.At.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	switch {
	case p.Type == display.TypeClear:
		e.Title = "Display cleared"
		e.Color = colorCleared
	case p.Kind == display.KindSong && p.Song != nil:
		e.Title = p.Song.Title
		e.Color = colorSong
		e.Description = truncate(p.Song.Lyrics)
		if p.Song.Artist != "" {
			e.Footer = &discordgo.MessageEmbedFooter{Text: p.Song.Artist}
		}
	default:
		e.Title = p.Reference
		e.Color = colorScripture
		e.Description = truncate(p.Text)
		if p.Translation != "" {
			e.Footer = &discordgo.MessageEmbedFooter{Text: p.Translation}
		}
	}
	return e
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxDescription {
		return s
	}
	return string(r[:maxDescription-1]) + "…"
}
