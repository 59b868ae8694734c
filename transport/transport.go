// Package transport moves the parameter image to the mixer hardware and
// brings metering readings back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cwbudde/algo-mixer/fixedpoint"
	"github.com/cwbudde/algo-mixer/topology"
)

var ErrShortPacket = errors.New("transport: short metering packet")

// Transport runs until ctx is cancelled.
type Transport interface {
	Run(ctx context.Context) error
}

// Memory is the read side of the parameter image.
type Memory interface {
	Format() fixedpoint.Format
	NumCores() int
	WordsPerCore() int
	Generation() uint64
	CopyCore(core int, dst []uint32) []uint32
	Value(core, addr int) float64
}

// MeterSink receives linear meter powers, channels first, then physical
// busses.
type MeterSink interface {
	MeterSize() int
	PublishMeter(powers []float64) error
}

// Kinds accepted by Open.
const (
	KindDummy  = "dummy"
	KindDevice = "device"
)

const DefaultPollInterval = 100 * time.Millisecond

// Config selects and tunes a transport.
type Config struct {
	Kind         string
	DevicePath   string
	PollInterval time.Duration
}

// Open builds the transport named by cfg.Kind. A device transport opens
// cfg.DevicePath read-write and closes it when Run returns.
func Open(cfg Config, mem Memory, topo *topology.Topology, sink MeterSink) (Transport, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	switch cfg.Kind {
	case KindDummy:
		return NewDummy(mem, topo, sink, cfg.PollInterval), nil
	case KindDevice:
		if cfg.DevicePath == "" {
			return nil, fmt.Errorf("device transport needs a device path")
		}
		f, err := os.OpenFile(cfg.DevicePath, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("open device: %w", err)
		}
		d := NewDevice(f, mem, sink, cfg.PollInterval)
		d.closer = f
		return d, nil
	}
	return nil, fmt.Errorf("unknown transport %q (want %s or %s)", cfg.Kind, KindDummy, KindDevice)
}

// poll calls step every interval until ctx is done. A step error stops the
// loop.
func poll(ctx context.Context, interval time.Duration, step func(now time.Time) error) error {
	if err := step(time.Now()); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := step(now); err != nil {
				return err
			}
		}
	}
}
