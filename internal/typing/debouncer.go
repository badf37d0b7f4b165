// Package typing turns local keystrokes into start/stop typing signals and
// tracks whether the remote peer is typing.
package typing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"chat-client/internal/notify"
	"chat-client/internal/protocol"
)

const (
	DefaultStartInterval = 2000 * time.Millisecond
	DefaultStopDelay     = 3000 * time.Millisecond
	DefaultNotConnected  = "Oops! Not connected to the fun zone!"
)

// Sender is the part of the connection manager the debouncer needs.
type Sender interface {
	Connected() bool
	Send(frame []byte) bool
}

// Config tunes a Debouncer. Zero fields take the defaults.
type Config struct {
	StartInterval time.Duration
	StopDelay     time.Duration
	NotConnected  string
}

// Debouncer sends at most one start signal per StartInterval of continuous
// typing and one stop signal StopDelay after the last keystroke.
type Debouncer struct {
	cfg      Config
	clock    clock.Clock
	sender   Sender
	codec    protocol.Codec
	notifier notify.Notifier
	logger   zerolog.Logger

	mu        sync.Mutex
	started   bool
	lastStart time.Time
	stop      *clock.Timer
	seq       uint64
}

func NewDebouncer(cfg Config, clk clock.Clock, sender Sender, codec protocol.Codec, notifier notify.Notifier, logger zerolog.Logger) *Debouncer {
	if cfg.StartInterval <= 0 {
		cfg.StartInterval = DefaultStartInterval
	}
	if cfg.StopDelay <= 0 {
		cfg.StopDelay = DefaultStopDelay
	}
	if cfg.NotConnected == "" {
		cfg.NotConnected = DefaultNotConnected
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Debouncer{
		cfg:      cfg,
		clock:    clk,
		sender:   sender,
		codec:    codec,
		notifier: notifier,
		logger:   logger,
	}
}

// Keystroke records one unit of local typing activity.
func (d *Debouncer) Keystroke() {
	if !d.sender.Connected() {
		d.notifier.Notify(notify.LevelError, d.cfg.NotConnected)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if !d.started || now.Sub(d.lastStart) > d.cfg.StartInterval {
		if d.signal(true) {
			d.started = true
			d.lastStart = now
		}
	}

	if d.stop != nil {
		d.stop.Stop()
	}
	d.seq++
	seq := d.seq
	d.stop = d.clock.AfterFunc(d.cfg.StopDelay, func() { d.fire(seq) })
}

// Stop cancels a pending stop signal without sending it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		d.stop.Stop()
		d.stop = nil
	}
	d.seq++
	d.started = false
}

// Pending reports whether a stop signal is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.seq {
		return
	}
	d.stop = nil
	d.signal(false)
}

// signal must be called with mu held.
func (d *Debouncer) signal(active bool) bool {
	frame, err := d.codec.Encode(protocol.SendTyping{Active: active})
	if err != nil {
		d.logger.Error().Err(err).Msg("encode typing signal")
		return false
	}
	if !d.sender.Send(frame) {
		d.logger.Debug().Bool("active", active).Msg("typing signal not sent")
		return false
	}
	return true
}
