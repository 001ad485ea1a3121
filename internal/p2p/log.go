package p2p

// Logf logs only in debug mode.
func (n *Network) Logf(format string, args ...any) {
	if !n.cfg.Debug {
		return
	}
	n.logf(format, args...)
}

func (n *Network) logf(format string, args ...any) {
	if n.cfg.Logger != nil {
		n.cfg.Logger.Printf("[node %s] "+format, append([]any{n.id[:8]}, args...)...)
	}
}
