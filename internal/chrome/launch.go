package chrome

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Debug ports are probed in this fixed range, shuffled to reduce collisions
// between concurrent launches.
const (
	portRangeStart = 8000
	portRangeEnd   = 9000
)

// DefaultLaunchTimeout bounds the wait for the debug WebSocket URL.
const DefaultLaunchTimeout = 30 * time.Second

var (
	// ErrPortUnavailable is returned when no port in the probe range can be
	// bound.
	ErrPortUnavailable = errors.New("no available debug port")

	// ErrDebugURLNotFound is returned when the browser exits or closes its
	// error stream before printing the DevTools listening line.
	ErrDebugURLNotFound = errors.New("debug websocket url not found")
)

// debugURLPattern matches the startup line announcing the browser-level
// debug endpoint.
var debugURLPattern = regexp.MustCompile(`DevTools listening on (ws://[^\s]+)`)

// defaultArgs is the baseline flag set for headless server use: sandboxing
// primitives that need elevated privileges are off, rendering is forced onto
// the CPU, the JS heap is capped, and background network chatter is disabled.
var defaultArgs = []string{
	"--no-sandbox",
	"--no-zygote",
	"--in-process-gpu",
	"--disable-dev-shm-usage",
	"--js-flags=--max-old-space-size=512",
	"--disable-features=Translate,OptimizationHints,MediaRouter,DialMediaRouteProvider",
	"--disable-background-networking",
	"--disable-component-update",
	"--disable-domain-reliability",
	"--disable-gpu",
	"--use-gl=swiftshader",
	"--force-color-profile=srgb",
	"--enable-async-dns",
	"--no-pings",
	"--hide-scrollbars",
	"--mute-audio",
	"--window-size=1200,1600",
	"--disable-breakpad",
	"--disable-infobars",
	"--disable-notifications",
	"--disable-popup-blocking",
	"--no-first-run",
	"--no-default-browser-check",
	"--user-agent=Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
}

// Options configures a browser launch. The zero value launches a headless
// browser with a discovered executable and a profile under the system temp
// directory.
type Options struct {
	// ExecPath is an explicit browser executable. Empty means discover.
	ExecPath string

	// Headless hides the browser window. Note this adds an explicit flag;
	// the browser is headful by default.
	Headless bool

	// TempDirBase is the directory profile directories are created under.
	// Empty means os.TempDir().
	TempDirBase string
}

// buildArgs constructs the browser command line.
func buildArgs(port int, profileDir string, headless bool) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		fmt.Sprintf("--user-data-dir=%s", profileDir),
	}
	args = append(args, defaultArgs...)
	if headless {
		args = append(args, "--headless")
	}
	return args
}

// allocatePort probes the debug port range for a locally bindable port.
// This is best-effort: the port is released again before the browser binds
// it, so a concurrent process can still steal it. A steal surfaces as a
// launch failure rather than a silent retry.
func allocatePort() (int, error) {
	ports := make([]int, 0, portRangeEnd-portRangeStart)
	for p := portRangeStart; p < portRangeEnd; p++ {
		ports = append(ports, p)
	}
	rand.Shuffle(len(ports), func(i, j int) { ports[i], ports[j] = ports[j], ports[i] })

	for _, port := range ports {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, ErrPortUnavailable
}

// newProfileDir creates a fresh isolated profile directory under base. The
// name carries a readable timestamp plus a short random suffix so concurrent
// launches never collide.
func newProfileDir(base string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	name := fmt.Sprintf("htmlshot-%s-%s", time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	return dir, nil
}

// Launch starts a browser process and returns its supervisor handle together
// with the debug WebSocket URL. No partially started process survives a
// failed launch: if spawn succeeds but URL extraction fails, the process is
// killed and the profile directory removed before returning.
func Launch(ctx context.Context, opts Options, log *zap.Logger) (*Process, string, error) {
	if log == nil {
		log = zap.NewNop()
	}

	execPath, err := FindExecutable(opts.ExecPath)
	if err != nil {
		return nil, "", err
	}

	port, err := allocatePort()
	if err != nil {
		return nil, "", err
	}

	profileDir, err := newProfileDir(opts.TempDirBase)
	if err != nil {
		return nil, "", err
	}

	cmd := exec.Command(execPath, buildArgs(port, profileDir, opts.Headless)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(profileDir)
		return nil, "", fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		os.RemoveAll(profileDir)
		return nil, "", fmt.Errorf("start browser: %w", err)
	}

	proc := &Process{
		cmd:        cmd,
		port:       port,
		profileDir: profileDir,
		log:        log,
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultLaunchTimeout)
		defer cancel()
	}

	wsURL, err := extractDebugURL(ctx, stderr)
	if err != nil {
		proc.Close()
		return nil, "", err
	}

	log.Debug("browser launched",
		zap.Int("pid", proc.Pid()),
		zap.Int("port", port),
		zap.String("profile", profileDir))

	return proc, wsURL, nil
}

// extractDebugURL scans the browser's error stream for the DevTools
// listening line. The stream is read on a dedicated goroutine because line
// reads block, and the goroutine keeps draining after a match so the child's
// stderr pipe never fills and stalls the browser.
func extractDebugURL(ctx context.Context, stderr io.Reader) (string, error) {
	urlCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(stderr)
		matched := false
		for scanner.Scan() {
			if matched {
				continue // drain
			}
			if m := debugURLPattern.FindStringSubmatch(scanner.Text()); len(m) > 1 {
				matched = true
				urlCh <- m[1]
			}
		}
		if !matched {
			if err := scanner.Err(); err != nil {
				errCh <- fmt.Errorf("read browser stderr: %w", err)
			} else {
				errCh <- ErrDebugURLNotFound
			}
		}
	}()

	select {
	case url := <-urlCh:
		return url, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for debug url: %w", ctx.Err())
	}
}
