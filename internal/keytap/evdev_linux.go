//go:build linux

package keytap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const procDevices = "/proc/bus/input/devices"

// Evdev reads key events from /dev/input event nodes. Reading them requires
// membership in the input group or root.
type Evdev struct {
	// Devices lists event nodes to read. Empty means auto-detect.
	Devices []string
}

// FindKeyboards returns the event nodes of attached keyboards.
func FindKeyboards() ([]string, error) {
	f, err := os.Open(procDevices)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			_ = cerr
		}
	}()
	devices, err := parseDevices(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", procDevices, err)
	}
	matches, _ := filepath.Glob("/dev/input/by-id/*-event-kbd")
	return dedupe(append(devices, matches...)), nil
}

// Run reads every device until ctx is done. A device that fails mid-stream
// reports HookDisabled; the others keep running.
func (e *Evdev) Run(ctx context.Context, h Handler) error {
	paths := e.Devices
	if len(paths) == 0 {
		found, err := FindKeyboards()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotAvailable, err)
		}
		paths = found
	}

	var files []*os.File
	var openErr error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			log.Warn().Err(err).Str("device", p).Msg("cannot open keyboard device")
			openErr = errors.Join(openErr, err)
			continue
		}
		log.Info().Str("device", p).Msg("reading keyboard device")
		files = append(files, f)
	}
	if len(files) == 0 {
		if openErr == nil {
			return fmt.Errorf("%w: no keyboard devices found", ErrNotAvailable)
		}
		return fmt.Errorf("%w: %v", ErrNotAvailable, openErr)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			readDevice(gctx, f, h)
			return nil
		})
	}
	// Closing the files unblocks pending reads.
	go func() {
		<-gctx.Done()
		for _, f := range files {
			_ = f.Close()
		}
	}()
	return g.Wait()
}

func readDevice(ctx context.Context, f *os.File, h Handler) {
	var tr Translator
	buf := make([]byte, EventSize)
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("device", f.Name()).Msg("lost keyboard device")
			h.HookDisabled(fmt.Errorf("read %s: %w", f.Name(), err))
			return
		}
		ev, ok := parseEvent(buf)
		if !ok || ev.Type != evKey {
			continue
		}
		if code, ok := tr.Translate(ev.Code, ev.Value); ok {
			h.KeyDown(code, ev.At)
		}
	}
}
