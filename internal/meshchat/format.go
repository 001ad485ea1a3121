package meshchat

const ansiReset = "\033[0m"

// Some basic, deterministic colors for names.
var nameColors = []string{
	"\033[31m", // red
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[34m", // blue
	"\033[35m", // magenta
	"\033[36m", // cyan
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// pickColor returns a color based on a stable FNV-style hash of s.
func pickColor(s string) string {
	if s == "" {
		return ansiReset
	}
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*16777619 ^ uint32(s[i])
	}
	return nameColors[h%uint32(len(nameColors))]
}

// displayName colors name, or the peer address when the peer has not
// announced a name yet.
func displayName(name, addr string, color bool) string {
	display := name
	if display == "" {
		display = addr
	}
	if !color {
		return display
	}
	return pickColor(display) + display + ansiReset
}
