// Package controller owns the live mixer state and keeps the parameter
// memory image in step with it.
package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sync/atomic"

	"github.com/cwbudde/algo-mixer/cache"
	"github.com/cwbudde/algo-mixer/dsp"
	"github.com/cwbudde/algo-mixer/eq"
	"github.com/cwbudde/algo-mixer/fixedpoint"
	"github.com/cwbudde/algo-mixer/mixer"
	"github.com/cwbudde/algo-mixer/topology"
	"github.com/cwbudde/algo-mixer/translate"
)

// SnapshotStore persists serialized states. An empty name means the latest
// snapshot.
type SnapshotStore interface {
	Save(data []byte) (string, error)
	Load(name string) ([]byte, error)
}

// Meter is a set of readings in dBFS.
type Meter struct {
	Channels []float64 `json:"c"`
	Busses   []float64 `json:"b"`
}

// Controller has no internal locking: ApplyUpdate, DumpStateToMixer and the
// snapshot methods must be called from one goroutine. Meter, PublishMeter
// and the Image accessors are safe from any goroutine.
type Controller struct {
	topo   *topology.Topology
	state  *mixer.State
	image  *Image
	coeffs *cache.Generational[eq.Params, eq.Taps]
	opts   translate.Options
	store  SnapshotStore
	logger *log.Logger

	meter atomic.Pointer[[]float64]
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for snapshot fallback diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithTranslateOptions overrides the sample rate and pan law.
func WithTranslateOptions(o translate.Options) Option {
	return func(c *Controller) { c.opts = o }
}

// WithSnapshotStore enables LoadSnapshot and SaveSnapshot.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(c *Controller) { c.store = s }
}

// New builds a controller with the default state for topo and a zeroed
// image. Call DumpStateToMixer before starting a transport.
func New(topo *topology.Topology, format fixedpoint.Format, opts ...Option) (*Controller, error) {
	image, err := NewImage(topo.NumCores(), topo.WordsPerCore(), format)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		topo:   topo,
		state:  mixer.NewDefault(mixer.MetadataFor(topo)),
		image:  image,
		coeffs: cache.NewGenerational[eq.Params, eq.Taps](),
		opts:   translate.DefaultOptions(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) Topology() *topology.Topology { return c.topo }

func (c *Controller) Image() *Image { return c.image }

// State returns a copy of the live state.
func (c *Controller) State() *mixer.State { return c.state.Clone() }

// Get returns the live value of k.
func (c *Controller) Get(k mixer.Key) (mixer.Value, bool) { return c.state.Get(k) }

// CacheStats reports filter-design cache hits and misses.
func (c *Controller) CacheStats() (hits, misses uint64) { return c.coeffs.Stats() }

// ApplyUpdate stores u and re-translates the whole state into the image.
// Unknown controls fail with mixer.ErrUnknownControl and change nothing. If
// translation fails the previous value is put back and the image keeps its
// previous contents.
func (c *Controller) ApplyUpdate(u mixer.Update) error {
	k := u.Key()
	prev, ok := c.state.Get(k)
	if !ok {
		return fmt.Errorf("%w: %s", mixer.ErrUnknownControl, k)
	}
	if err := c.state.Apply(u); err != nil {
		return err
	}
	if err := c.sync(); err != nil {
		if rerr := c.state.Set(k, prev); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// Set parses a textual control path and value and applies it.
func (c *Controller) Set(path, raw string) error {
	u, err := mixer.ParseUpdate(path, raw)
	if err != nil {
		return err
	}
	return c.ApplyUpdate(u)
}

// DumpStateToMixer translates the current state without changing it.
func (c *Controller) DumpStateToMixer() error {
	return c.sync()
}

func (c *Controller) sync() error {
	st := &staging{im: c.image}
	if err := translate.Translate(c.state, c.topo, st.set, c.coeffs, c.opts); err != nil {
		c.coeffs.Discard()
		return err
	}
	st.commit()
	c.coeffs.Advance()
	if st.saturated > 0 {
		c.logger.Printf("%d parameter words saturated", st.saturated)
	}
	return nil
}

// MeterSize is the number of readings a metering packet carries: one per
// channel followed by one per physical bus.
func (c *Controller) MeterSize() int {
	return c.topo.NumChannels() + c.topo.NumPhysicalBusses()
}

// PublishMeter records the latest linear power readings, in metering packet
// order. Transports call it from their own goroutine.
func (c *Controller) PublishMeter(powers []float64) error {
	if len(powers) != c.MeterSize() {
		return fmt.Errorf("meter: got %d readings, want %d", len(powers), c.MeterSize())
	}
	p := append([]float64(nil), powers...)
	c.meter.Store(&p)
	return nil
}

// Meter returns the most recent readings in dBFS. Before any packet arrived
// every reading is at the silence floor.
func (c *Controller) Meter() Meter {
	n := c.topo.NumChannels()
	m := Meter{
		Channels: make([]float64, n),
		Busses:   make([]float64, c.topo.NumPhysicalBusses()),
	}
	var powers []float64
	if p := c.meter.Load(); p != nil {
		powers = *p
	}
	for i := range m.Channels {
		m.Channels[i] = dsp.MinFaderDB
		if powers != nil {
			m.Channels[i] = dsp.PowerToDB(powers[i])
		}
	}
	for i := range m.Busses {
		m.Busses[i] = dsp.MinFaderDB
		if powers != nil {
			m.Busses[i] = dsp.PowerToDB(powers[n+i])
		}
	}
	return m
}

// SaveSnapshot persists the live state and returns the snapshot name.
func (c *Controller) SaveSnapshot() (string, error) {
	if c.store == nil {
		return "", fmt.Errorf("no snapshot store configured")
	}
	data, err := json.Marshal(c.state)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return c.store.Save(data)
}

// LoadSnapshot replaces the live state with a stored one and translates it.
// Snapshots built for another topology fail with mixer.ErrInvalidSnapshot;
// on any error the live state is unchanged.
func (c *Controller) LoadSnapshot(name string) error {
	if c.store == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	data, err := c.store.Load(name)
	if err != nil {
		return err
	}
	var snap mixer.State
	if err := json.Unmarshal(data, &snap); err != nil {
		if !errors.Is(err, mixer.ErrInvalidSnapshot) {
			err = fmt.Errorf("%w: %v", mixer.ErrInvalidSnapshot, err)
		}
		return err
	}
	prev := c.state.Clone()
	if err := c.state.Restore(&snap); err != nil {
		return err
	}
	if err := c.sync(); err != nil {
		c.state = prev
		return err
	}
	return nil
}

// Startup loads the latest snapshot, falling back to the default state when
// there is none or it does not fit, and translates the result.
func (c *Controller) Startup() error {
	if c.store != nil {
		switch err := c.LoadSnapshot(""); {
		case err == nil:
			c.logger.Printf("snapshot loaded")
			return nil
		case errors.Is(err, fs.ErrNotExist):
			c.logger.Printf("no snapshot found, using defaults")
		case errors.Is(err, mixer.ErrInvalidSnapshot):
			c.logger.Printf("not loading invalid snapshot: %v", err)
		default:
			c.logger.Printf("snapshot load failed, using defaults: %v", err)
		}
	}
	return c.DumpStateToMixer()
}
