package channel

import (
	"context"
	"fmt"
	"log"
	"slices"

	"github.com/sourcegraph/conc/pool"

	"github.com/serenitybot/serenity/internal/bus"
	"github.com/serenitybot/serenity/internal/config"
)

// Pusher is a channel whose chat ids stay valid between conversations,
// so scheduled messages can reach the user later.
type Pusher interface {
	CanPush() bool
}

// ChannelManager owns the enabled channels and routes outbound bus
// messages to them by name.
type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	webui    *WebUIChannel
}

func NewChannelManager(cfg config.ChannelsConfig, b *bus.MessageBus) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.Telegram.Enabled {
		tg, err := NewTelegramChannel(cfg.Telegram, b)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.register(tg)
	}
	if cfg.WebUI.Enabled {
		web, err := NewWebUIChannel(cfg.WebUI, b)
		if err != nil {
			return nil, fmt.Errorf("init webui channel: %w", err)
		}
		m.webui = web
		m.register(web)
	}
	return m, nil
}

func (m *ChannelManager) register(ch Channel) {
	name := ch.Name()
	m.channels[name] = ch
	m.bus.SubscribeOutbound(name, func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			log.Printf("[channel-mgr] %s: deliver to chat %s failed: %v", name, msg.ChatID, err)
		}
	})
}

// WebUI returns the browser channel, or nil when it is disabled.
func (m *ChannelManager) WebUI() *WebUIChannel {
	return m.webui
}

// StartAll starts every channel concurrently and joins their start errors.
func (m *ChannelManager) StartAll(ctx context.Context) error {
	p := pool.New().WithErrors()
	for _, name := range m.EnabledChannels() {
		ch := m.channels[name]
		p.Go(func() error {
			log.Printf("[channel-mgr] starting %s", name)
			if err := ch.Start(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return p.Wait()
}

// StopAll stops every channel. Stop errors are logged only.
func (m *ChannelManager) StopAll() error {
	for _, name := range m.EnabledChannels() {
		log.Printf("[channel-mgr] stopping %s", name)
		if err := m.channels[name].Stop(); err != nil {
			log.Printf("[channel-mgr] error stopping %s: %v", name, err)
		}
	}
	return nil
}

// EnabledChannels lists channel names in sorted order.
func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// PushChannels lists the enabled channels that implement Pusher and accept pushes.
func (m *ChannelManager) PushChannels() []string {
	var names []string
	for _, name := range m.EnabledChannels() {
		if p, ok := m.channels[name].(Pusher); ok && p.CanPush() {
			names = append(names, name)
		}
	}
	return names
}
