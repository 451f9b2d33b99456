// Package sym defines the symbols linkpulse attaches to structured log lines.
// They are stable across CLI output and logs so operators can filter on them.
package sym

// Pulse marks scheduler and background-job activity
const Pulse = "꩜"

// PulseOpen marks graceful startup (scheduler armed, initial runs queued)
const PulseOpen = "✿"

// PulseClose marks graceful shutdown (timers cancelled, daemon exiting)
const PulseClose = "❀"

// DB marks database and storage operations
const DB = "⊔"

// AM marks configuration loading and reloads
const AM = "≡"

// Link marks short URL lifecycle events (expiry audit records)
const Link = "⇢"

// All returns every symbol, in display order
func All() []string {
	return []string{Pulse, PulseOpen, PulseClose, DB, AM, Link}
}
