// Package streamopt implements the "stream optimizer" ambient feature
// (config key STREAM_OPTIMIZER_ENABLED): re-chunking an upstream text delta
// into several smaller fragments before forwarding to the client, producing
// a steadier typing cadence than the upstream's own, often bursty, chunk
// boundaries. Modeled on the reference chat service's stream-optimizer
// call site, which wraps each text delta with a generator yielding
// fixed-size character groups instead of the delta as one piece.
package streamopt

// Config gates and sizes the optimizer. ChunkRunes <= 0 disables it.
type Config struct {
	Enabled    bool
	ChunkRunes int
}

// SplitText breaks text into ChunkRunes-sized groups, rune-safe. Returns a
// single-element slice containing text unchanged when the optimizer is
// disabled or text is empty.
func SplitText(cfg Config, text string) []string {
	if !cfg.Enabled || cfg.ChunkRunes <= 0 || text == "" {
		return []string{text}
	}

	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += cfg.ChunkRunes {
		end := i + cfg.ChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}
