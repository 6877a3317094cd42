package player

import "github.com/okian/pulse/pkg/logger"

// Option applies a configuration option to the Player.
type Option func(*Player)

// WithManualMode starts the player in manual mode, advanced only by Tick.
func WithManualMode(enabled bool) Option {
	return func(p *Player) {
		p.manual = enabled
	}
}

// WithLogger sets a custom logger for the player.
func WithLogger(lg logger.Logger) Option {
	return func(p *Player) {
		if lg != nil {
			p.logger = lg
		}
	}
}
