//go:build !windows

package chrome

// registryExecutable is a no-op outside Windows.
func registryExecutable() (string, bool) {
	return "", false
}
