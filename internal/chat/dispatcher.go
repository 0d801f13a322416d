package chat

import "log/slog"

// Delivery summarizes one broadcast.
type Delivery struct {
	Delivered int
	Failed    int
}

// Dispatcher fans messages out to every registered connection.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher returns a Dispatcher reading recipients from registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Broadcast sends text to every entry of a registry snapshot. A failed send
// is logged and skipped; it neither stops the fan-out nor removes the
// recipient, whose own session cleans up when its next receive fails.
func (d *Dispatcher) Broadcast(text string) Delivery {
	var delivery Delivery
	for _, entry := range d.registry.Snapshot() {
		if err := entry.Peer.Send(text); err != nil {
			delivery.Failed++
			d.logger.Warn("broadcast delivery failed",
				"username", entry.Username,
				"remote", entry.Peer.RemoteAddr(),
				"error", err,
			)
			continue
		}
		delivery.Delivered++
	}
	return delivery
}
