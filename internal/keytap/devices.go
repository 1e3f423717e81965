package keytap

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"
)

// parseDevices reads /proc/bus/input/devices and returns the event nodes of
// devices that have a kbd handler and key capabilities.
func parseDevices(r io.Reader) ([]string, error) {
	var devices []string
	var handler string
	kbd, keys := false, false

	flush := func() {
		if handler != "" && kbd && keys {
			devices = append(devices, "/dev/input/"+handler)
		}
		handler = ""
		kbd, keys = false, false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				switch {
				case part == "kbd":
					kbd = true
				case strings.HasPrefix(part, "event"):
					handler = part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			// A bare "0" bitmap means no keys.
			keys = strings.TrimPrefix(line, "B: KEY=") != "0"
		}
	}
	flush()
	return devices, scanner.Err()
}

// dedupe drops paths that resolve to the same device node.
func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		key := p
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			key = resolved
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
