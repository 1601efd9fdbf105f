// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/nrf_orientation/internal/ingest"
)

// ErrBadLine is returned for a serial line that is not
// "[device] <characteristic> <x,y,z>".
var ErrBadLine = errors.New("transport: malformed serial line")

// ParseLine splits one bridge line. With two fields the device is
// defaultDevice.
func ParseLine(line, defaultDevice string, at time.Time) (ingest.Notification, error) {
	fields := strings.Fields(line)
	n := ingest.Notification{Device: defaultDevice, ReceivedAt: at}
	switch len(fields) {
	case 2:
		n.Characteristic, n.Payload = fields[0], fields[1]
	case 3:
		n.Device, n.Characteristic, n.Payload = fields[0], fields[1], fields[2]
	default:
		return ingest.Notification{}, fmt.Errorf("%w: %q", ErrBadLine, line)
	}
	return n, nil
}

// SerialSource reads bridge lines from a serial port.
type SerialSource struct {
	opts   serial.OpenOptions
	device string
	sink   ingest.Sink
	log    *slog.Logger
}

// NewSerialSource reads port at baud. Lines without a device name are
// attributed to the port's base name.
func NewSerialSource(port string, baud int, sink ingest.Sink) *SerialSource {
	return &SerialSource{
		opts: serial.OpenOptions{
			PortName:              port,
			BaudRate:              uint(baud),
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		},
		device: filepath.Base(port),
		sink:   sink,
		log:    slog.With("source", "serial"),
	}
}

// Run opens the port and reads until ctx is cancelled or the port fails.
func (s *SerialSource) Run(ctx context.Context) error {
	port, err := serial.Open(s.opts)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", s.opts.PortName, err)
	}
	s.log.Info("Serial port opened", "port", s.opts.PortName, "baud", s.opts.BaudRate)

	// Closing the port unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	err = s.consume(ctx, port)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *SerialSource) consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		n, err := ParseLine(line, s.device, time.Now())
		if err != nil {
			s.log.Debug("Skipped line", "error", err)
			continue
		}
		if !s.sink.Offer(n) {
			s.log.Debug("Queue full, dropped notification", "device", n.Device)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("serial: read %s: %w", s.opts.PortName, err)
	}
	return fmt.Errorf("serial: %s: %w", s.opts.PortName, io.EOF)
}
