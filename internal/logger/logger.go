package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dodobot/serial-bridge/internal/protocol"
)

// Logger records timestamped robot telemetry to CSV files with automatic
// rotation. It keeps the latest record per category and writes a
// flattened row at most once per interval.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int

	drive   *protocol.DriveRecord
	bumper  *protocol.BumperRecord
	fsr     *protocol.FSRRecord
	gripper *protocol.GripperRecord
	linear  *protocol.LinearRecord
	battery *protocol.BatteryRecord
	tilter  *protocol.TilterRecord
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const (
	maxRowsPerFile = 100_000 // Rotate after 100k rows (~2.7 hrs at 10 Hz)
)

var csvHeader = []string{
	"timestamp",
	"left_ticks", "right_ticks", "left_speed", "right_speed",
	"bump1", "bump2",
	"fsr_left", "fsr_right",
	"grip_pos", "tilt_pos",
	"linear_pos", "linear_homed", "linear_error",
	"battery_v", "battery_ma",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/dodobridge"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 100 * time.Millisecond // Default 10 Hz
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Observe folds one decoded record into the latest snapshot and writes a
// row if the minimum interval has elapsed.
func (l *Logger) Observe(rec protocol.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch r := rec.(type) {
	case protocol.DriveRecord:
		l.drive = &r
	case protocol.BumperRecord:
		l.bumper = &r
	case protocol.FSRRecord:
		l.fsr = &r
	case protocol.GripperRecord:
		l.gripper = &r
	case protocol.LinearRecord:
		l.linear = &r
	case protocol.BatteryRecord:
		l.battery = &r
	case protocol.TilterRecord:
		l.tilter = &r
	}

	if !l.enabled {
		return
	}

	now := time.Now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(l.buildRow(now)); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("dodobot_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) buildRow(ts time.Time) []string {
	row := make([]string, len(csvHeader))

	row[0] = ts.Format(time.RFC3339Nano)

	if d := l.drive; d != nil {
		row[1] = fmt.Sprintf("%d", d.LeftTicks)
		row[2] = fmt.Sprintf("%d", d.RightTicks)
		row[3] = fmt.Sprintf("%.2f", d.LeftSpeed)
		row[4] = fmt.Sprintf("%.2f", d.RightSpeed)
	}
	if b := l.bumper; b != nil {
		row[5] = boolStr(b.Bump1)
		row[6] = boolStr(b.Bump2)
	}
	if f := l.fsr; f != nil {
		row[7] = fmt.Sprintf("%d", f.Left)
		row[8] = fmt.Sprintf("%d", f.Right)
	}
	if g := l.gripper; g != nil {
		row[9] = fmt.Sprintf("%d", g.Position)
	}
	if t := l.tilter; t != nil {
		row[10] = fmt.Sprintf("%d", t.Position)
	}
	if ln := l.linear; ln != nil {
		row[11] = fmt.Sprintf("%d", ln.Position)
		row[12] = boolStr(ln.IsHomed)
		row[13] = boolStr(ln.HasError)
	}
	if b := l.battery; b != nil {
		row[14] = fmt.Sprintf("%.2f", b.Voltage)
		row[15] = fmt.Sprintf("%.1f", b.Current)
	}

	return row
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
