// Package adb drives the Android debug bridge: it builds the logcat
// command used as the default source and runs the helper commands
// behind the devices, clear and log subcommands.
package adb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/coffersTech/nanocat/internal/model"
	"github.com/coffersTech/nanocat/internal/source"
)

// DefaultBuffers are read when no buffer is configured.
var DefaultBuffers = []string{"main", "events", "crash", "kernel"}

// ErrNotFound is returned when no adb binary can be located.
var ErrNotFound = errors.New("adb not found in ANDROID_HOME or PATH")

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Streamer executes a command with its standard output copied to w.
type Streamer func(ctx context.Context, w io.Writer, name string, args ...string) error

func execStreamer(ctx context.Context, w io.Writer, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Find locates adb, preferring $ANDROID_HOME/platform-tools.
func Find() (string, error) {
	bin := "adb"
	if runtime.GOOS == "windows" {
		bin = "adb.exe"
	}
	if home := os.Getenv("ANDROID_HOME"); home != "" {
		path := filepath.Join(home, "platform-tools", bin)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// Client targets one device, or whatever adb picks when Serial is empty.
type Client struct {
	Path   string
	Serial string
	run    Runner
	stream Streamer
}

// Option customizes a Client.
type Option func(*Client)

// WithRunner replaces command execution, for tests.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.run = r }
}

// WithStreamer replaces streamed command execution, for tests.
func WithStreamer(s Streamer) Option {
	return func(c *Client) { c.stream = s }
}

// WithPath sets the adb binary instead of searching for it.
func WithPath(path string) Option {
	return func(c *Client) { c.Path = path }
}

// New returns a Client for serial.
func New(serial string, opts ...Option) (*Client, error) {
	c := &Client{Serial: serial, run: execRunner, stream: execStreamer}
	for _, opt := range opts {
		opt(c)
	}
	if c.Path == "" {
		path, err := Find()
		if err != nil {
			return nil, err
		}
		c.Path = path
	}
	return c, nil
}

func (c *Client) args(rest ...string) []string {
	var args []string
	if c.Serial != "" {
		args = append(args, "-s", c.Serial)
	}
	return append(args, rest...)
}

// LogcatOptions selects what logcat reads.
type LogcatOptions struct {
	Buffers []string
	// Tail prints only the most recent n lines and exits.
	Tail int
	// Dump prints the buffers and exits.
	Dump bool
	// Last dumps the logs from before the last reboot.
	Last bool
	// Restart respawns logcat when it exits.
	Restart bool
}

// Logcat returns the process source for a logcat session. Tail, Dump
// and Last end on their own, so they never restart.
func (c *Client) Logcat(o LogcatOptions) *source.Process {
	args := []string{c.Path}
	args = append(args, c.args("logcat")...)
	restart := o.Restart
	if o.Tail > 0 {
		args = append(args, "-t", strconv.Itoa(o.Tail))
		restart = false
	}
	if o.Dump {
		args = append(args, "-d")
		restart = false
	}
	if o.Last {
		args = append(args, "--last")
		restart = false
	}
	buffers := o.Buffers
	if len(buffers) == 0 {
		buffers = DefaultBuffers
	}
	for _, b := range buffers {
		args = append(args, "-b", b)
	}
	return &source.Process{Args: args, OneShot: !restart}
}

// Device is one line of `adb devices`.
type Device struct {
	Serial string
	State  string
}

// Devices lists attached devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	out, err := c.run(ctx, c.Path, "devices")
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}
	var devices []Device
	for _, fields := range listing(out) {
		d := Device{Serial: fields[0], State: "unknown"}
		if len(fields) > 1 {
			d.State = fields[1]
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// ProcessPIDs resolves process names to the PIDs currently running on
// the device. Processes started later are not picked up.
func (c *Client) ProcessPIDs(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out, err := c.run(ctx, c.Path, c.args("shell", "ps", "-Ao", "pid,args")...)
	if err != nil {
		return nil, fmt.Errorf("adb shell ps: %w", err)
	}
	var pids []string
	for _, fields := range listing(out) {
		if len(fields) > 1 && slices.Contains(names, fields[1]) {
			pids = append(pids, fields[0])
		}
	}
	return pids, nil
}

// Clear empties the given logcat buffers.
func (c *Client) Clear(ctx context.Context, buffers []string) error {
	if len(buffers) == 0 {
		buffers = DefaultBuffers
	}
	args := c.args("logcat", "-c")
	for _, b := range buffers {
		args = append(args, "-b", b)
	}
	if out, err := c.run(ctx, c.Path, args...); err != nil {
		return fmt.Errorf("adb logcat -c: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// Log writes message to the device log with the given tag and level.
func (c *Client) Log(ctx context.Context, level model.Level, tag, message string) error {
	args := c.args("shell", "log", "-p", priority(level), "-t", strconv.Quote(tag), strconv.Quote(message))
	if out, err := c.run(ctx, c.Path, args...); err != nil {
		return fmt.Errorf("adb shell log: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// Bugreport streams the device dumpstate to w and returns the number of
// bytes written. Devices that only produce zipped reports (Android 7
// and later) write nothing useful to stdout.
func (c *Client) Bugreport(ctx context.Context, w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := c.stream(ctx, cw, c.Path, c.args("bugreport")...); err != nil {
		return cw.n, fmt.Errorf("adb bugreport: %w", err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func priority(l model.Level) string {
	switch l {
	case model.LevelTrace:
		return "v"
	case model.LevelInfo:
		return "i"
	case model.LevelWarn:
		return "w"
	case model.LevelError, model.LevelFatal:
		return "e"
	}
	return "d"
}

// listing splits adb's tabular output into fields, skipping the header
// line, blank lines and daemon start notices.
func listing(out []byte) [][]string {
	var rows [][]string
	sc := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "* daemon") {
			continue
		}
		if first {
			first = false
			continue
		}
		rows = append(rows, strings.Fields(line))
	}
	return rows
}
