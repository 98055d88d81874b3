package reverb

import "time"

// Option configures a World at construction time. The pattern follows
// joshuafuller-beacon's responder.Option functional options.
type Option func(*World)

// WithReapDelay overrides how long a despawned entity's tombstone remains
// in the server's live table before physical removal. Default 3s.
func WithReapDelay(d time.Duration) Option {
	return func(w *World) { w.reapDelay = d }
}
