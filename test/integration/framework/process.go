// Package framework runs example device binaries for integration tests
// and drives them over the remote console.
package framework

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// DeviceProcess manages the lifecycle of an example device binary.
type DeviceProcess struct {
	pkgDir  string
	name    string
	args    []string
	logFile string

	mu            sync.Mutex
	cmd           *exec.Cmd
	started       bool
	logFileHandle *os.File
	done          chan struct{}
	cancel        context.CancelFunc
}

// DeviceProcessConfig configures a DeviceProcess.
type DeviceProcessConfig struct {
	// PackageDir is the main package of the device, e.g. "../../cmd/esp-matter-light".
	PackageDir string

	// Port is the operational UDP port. Zero picks a free one.
	Port int

	Discriminator uint16
	Passcode      uint32

	// StoragePath is the store file. Empty keeps the device in memory.
	StoragePath string

	// ConsoleAddr is the remote console address the device listens on.
	ConsoleAddr string

	// LogFile also receives the device output when set.
	LogFile string

	ExtraArgs []string
}

// NewDeviceProcess returns a stopped device process.
func NewDeviceProcess(config DeviceProcessConfig) *DeviceProcess {
	if config.Discriminator == 0 {
		config.Discriminator = 3840
	}
	if config.Passcode == 0 {
		config.Passcode = 20202021
	}

	args := []string{
		"--port", strconv.Itoa(config.Port),
		"--discriminator", strconv.FormatUint(uint64(config.Discriminator), 10),
		"--passcode", strconv.FormatUint(uint64(config.Passcode), 10),
		"--log-level", "debug",
	}
	if config.StoragePath != "" {
		args = append(args, "--storage", config.StoragePath)
	}
	if config.ConsoleAddr != "" {
		args = append(args, "--console-addr", config.ConsoleAddr)
	}
	args = append(args, config.ExtraArgs...)

	return &DeviceProcess{
		pkgDir:  config.PackageDir,
		name:    filepath.Base(config.PackageDir),
		args:    args,
		logFile: config.LogFile,
		done:    make(chan struct{}),
	}
}

// Start builds and starts the device with `go run`.
func (d *DeviceProcess) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("device process already started")
	}
	absPath, err := filepath.Abs(d.pkgDir)
	if err != nil {
		return fmt.Errorf("resolve package dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.cmd = exec.CommandContext(ctx, "go", append([]string{"run", "."}, d.args...)...)
	d.cmd.Dir = absPath

	if d.logFile != "" {
		f, err := os.OpenFile(d.logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			cancel()
			return fmt.Errorf("open log file: %w", err)
		}
		d.logFileHandle = f
	}
	d.cmd.Stdout = newLogWriter(fmt.Sprintf("[%s stdout]", d.name), d.logFileHandle)
	d.cmd.Stderr = newLogWriter(fmt.Sprintf("[%s stderr]", d.name), d.logFileHandle)

	if err := d.cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start device: %w", err)
	}
	d.started = true

	go func() {
		defer close(d.done)
		_ = d.cmd.Wait()
	}()
	return nil
}

// Stop sends SIGTERM and waits for the device to exit, killing it after
// five seconds.
func (d *DeviceProcess) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}
	if d.cmd.Process != nil {
		if err := d.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			_ = d.cmd.Process.Kill()
		}
	}
	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		_ = d.cmd.Process.Kill()
		<-d.done
	}
	d.cancel()

	if d.logFileHandle != nil {
		d.logFileHandle.Close()
		d.logFileHandle = nil
	}
	d.started = false
	return nil
}

// IsRunning reports whether the process is still alive.
func (d *DeviceProcess) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// logWriter prefixes device output and copies it to an optional file.
type logWriter struct {
	prefix  string
	logFile *os.File
	mu      sync.Mutex
}

func newLogWriter(prefix string, logFile *os.File) *logWriter {
	return &logWriter{prefix: prefix, logFile: logFile}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Printf("%s %s", w.prefix, p)
	if w.logFile != nil {
		fmt.Fprintf(w.logFile, "%s %s", w.prefix, p)
	}
	return len(p), nil
}
