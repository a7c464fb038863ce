//go:build windows

package chrome

import (
	"os"

	"golang.org/x/sys/windows/registry"
)

// registryExecutable reads the Chrome App Paths registry entry.
func registryExecutable() (string, bool) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE,
		`SOFTWARE\Microsoft\Windows\CurrentVersion\App Paths\chrome.exe`, registry.QUERY_VALUE)
	if err != nil {
		return "", false
	}
	defer key.Close()

	path, _, err := key.GetStringValue("")
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}
