// Package chrome supervises the browser process: executable discovery, debug
// port allocation, isolated profile directories, spawn, debug-URL extraction,
// and teardown.
package chrome

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// EnvExecutable names the environment variable that overrides executable
// discovery.
const EnvExecutable = "HTMLSHOT_CHROME"

// ErrExecutableNotFound is returned when no Chromium-family binary can be
// located.
var ErrExecutableNotFound = errors.New("browser executable not found")

// executableNames are the binary names probed on PATH, in preference order.
var executableNames = []string{
	"google-chrome-stable",
	"google-chrome",
	"google-chrome-beta",
	"google-chrome-unstable",
	"chromium",
	"chromium-browser",
	"microsoft-edge-stable",
	"microsoft-edge",
	"chrome",
	"msedge",
}

// wellKnownPaths returns absolute install locations for the current platform.
func wellKnownPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Google Chrome Beta.app/Contents/MacOS/Google Chrome Beta",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/opt/google/chrome/chrome",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
		}
	default:
		return nil
	}
}

// isSandboxMount reports whether a resolved path lives inside a
// sandboxed-package mount. Those resolve through confinement shims and cannot
// be exec'd with our flag set.
func isSandboxMount(path string) bool {
	return strings.HasPrefix(path, "/snap/") || strings.HasPrefix(path, "/var/lib/snapd/")
}

// FindExecutable locates a browser executable. Resolution order, first match
// wins: explicit caller-supplied path, the HTMLSHOT_CHROME environment
// variable, well-known per-OS install paths, PATH lookup of common binary
// names (skipping sandbox mounts), and finally the platform registry where
// one exists. An explicit path that does not exist fails immediately; a
// stale environment override is skipped and discovery continues.
func FindExecutable(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		// An explicit path that does not exist is a caller error, not a
		// reason to fall back to discovery.
		return "", ErrExecutableNotFound
	}

	// A stale override does not abort the chain; discovery continues.
	if envPath := os.Getenv(EnvExecutable); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, path := range wellKnownPaths() {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, name := range executableNames {
		found, err := exec.LookPath(name)
		if err != nil || isSandboxMount(found) {
			continue
		}
		return found, nil
	}

	if path, ok := registryExecutable(); ok {
		return path, nil
	}

	return "", ErrExecutableNotFound
}
