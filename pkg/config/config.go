// Package config holds the immutable settings of a station. A Config is
// built once at startup and handed to every component constructor.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"Athernet/pkg/frame"
)

const (
	DomainInt   = "int"
	DomainFloat = "float"

	ModulationOFDM = "ofdm"
	ModulationNRZI = "nrzi"

	BackendLoopback  = "loopback"
	BackendPortAudio = "portaudio"
	BackendASIO      = "asio"
)

type Config struct {
	Device        DeviceConfig    `yaml:"device"`
	PhysicalLayer PhysicalConfig  `yaml:"physical_layer"`
	MACLayer      MACConfig       `yaml:"mac_layer"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	TUN           TUNConfig       `yaml:"tun"`
}

type DeviceConfig struct {
	Backend    string  `yaml:"backend"`
	DeviceName string  `yaml:"device_name"`
	SampleRate float64 `yaml:"sample_rate"`
	BufferSize int     `yaml:"buffer_size"`
	InChannel  int     `yaml:"in_channel"`
	OutChannel int     `yaml:"out_channel"`
}

type PreambleConfig struct {
	StartFreq       float64 `yaml:"start_freq"`
	EndFreq         float64 `yaml:"end_freq"`
	Length          int     `yaml:"length"`
	Amplitude       float64 `yaml:"amplitude"`
	ThresholdFactor int     `yaml:"threshold_factor"`
}

type CarrierConfig struct {
	MinFreq   float64 `yaml:"min_freq"`
	MaxFreq   float64 `yaml:"max_freq"`
	Amplitude float64 `yaml:"amplitude"`
	CPLength  int     `yaml:"cp_length"`
}

type LineCodeConfig struct {
	SamplesPerBit int     `yaml:"samples_per_bit"`
	Amplitude     float64 `yaml:"amplitude"`
}

type PhysicalConfig struct {
	SampleRate float64 `yaml:"-"` // copied from DeviceConfig

	Domain     string `yaml:"domain"`
	Modulation string `yaml:"modulation"`
	BitRate    int    `yaml:"bit_rate"`

	Preamble PreambleConfig `yaml:"preamble"`
	Carrier  CarrierConfig  `yaml:"carrier"`
	LineCode LineCodeConfig `yaml:"line_code"`

	HeaderBits         int     `yaml:"-"` // copied from MACConfig
	LengthBits         int     `yaml:"length_bits"`
	PayloadSymbolLimit int     `yaml:"payload_symbol_limit"`
	SilenceLength      int     `yaml:"silence_length"`
	RingCapacity       int     `yaml:"ring_capacity"`
	JamAmplitude       float64 `yaml:"jam_amplitude"`
}

// PowerMonitorConfig tunes carrier sense and collision detection. While a
// station transmits it hears its own output scaled by EchoGain, delayed by
// up to EchoPeriods periods. A collision needs at least CollisionThreshold
// and more than CollisionRatio times that expected echo. An EchoGain of 0
// describes a station that cannot hear itself.
type PowerMonitorConfig struct {
	Window             int     `yaml:"window"`
	Exponent           int     `yaml:"exponent"`
	BusyThreshold      float64 `yaml:"busy_threshold"`
	CollisionThreshold float64 `yaml:"collision_threshold"`
	CollisionRatio     float64 `yaml:"collision_ratio"`
	EchoGain           float64 `yaml:"echo_gain"`
	EchoPeriods        int     `yaml:"echo_periods"`
}

type MACConfig struct {
	Address          int                `yaml:"address"`
	AddressBits      int                `yaml:"address_bits"`
	SeqBits          int                `yaml:"seq_bits"`
	WindowSize       int                `yaml:"window_size"`
	Slot             int                `yaml:"slot"`
	MaxBackoff       int                `yaml:"max_backoff"`
	AckTimeout       int                `yaml:"ack_timeout"`
	MaxTimeoutRounds int                `yaml:"max_timeout_rounds"`
	EnqueueTimeout   time.Duration      `yaml:"enqueue_timeout"`
	Handshake        bool               `yaml:"handshake"`
	Initiator        bool               `yaml:"initiator"`
	PowerMonitor     PowerMonitorConfig `yaml:"power_monitor"`
}

type TelemetryConfig struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`
}

// TUNConfig describes the IP side of a station. An empty IP derives
// 172.18.0.<address+1>/24 from the MAC address.
type TUNConfig struct {
	IP      string `yaml:"ip"`
	Bridge  bool   `yaml:"bridge"`
	Capture string `yaml:"capture"`
}

// Default returns the settings used by the simulated network and the tests.
func Default() *Config {
	c := &Config{
		Device: DeviceConfig{
			Backend:    BackendLoopback,
			SampleRate: 48000,
			BufferSize: 512,
		},
		PhysicalLayer: PhysicalConfig{
			Domain:     DomainInt,
			Modulation: ModulationOFDM,
			BitRate:    1000,
			Preamble: PreambleConfig{
				StartFreq:       2000,
				EndFreq:         10000,
				Length:          240,
				Amplitude:       0.5,
				ThresholdFactor: 2,
			},
			Carrier: CarrierConfig{
				MinFreq:   2000,
				MaxFreq:   9000,
				Amplitude: 0.5,
				CPLength:  8,
			},
			LineCode: LineCodeConfig{
				SamplesPerBit: 4,
				Amplitude:     0.25,
			},
			LengthBits:         10,
			PayloadSymbolLimit: 600,
			SilenceLength:      100,
			RingCapacity:       1 << 18,
			JamAmplitude:       0.5,
		},
		MACLayer: MACConfig{
			Address:          0,
			AddressBits:      4,
			SeqBits:          8,
			WindowSize:       8,
			Slot:             8,
			MaxBackoff:       16,
			AckTimeout:       40,
			MaxTimeoutRounds: 10,
			EnqueueTimeout:   100 * time.Millisecond,
			PowerMonitor: PowerMonitorConfig{
				Window:             32,
				Exponent:           4,
				BusyThreshold:      1e-6,
				CollisionThreshold: 1e-4,
				CollisionRatio:     2,
				EchoGain:           1,
				EchoPeriods:        3,
			},
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
	c.derive()
	return c
}

// Load reads a yaml file on top of Default and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.derive()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithAddress returns a copy with a different station address.
func (c *Config) WithAddress(address int) *Config {
	cp := *c
	cp.MACLayer.Address = address
	return &cp
}

func (c *Config) derive() {
	c.PhysicalLayer.SampleRate = c.Device.SampleRate
	c.PhysicalLayer.HeaderBits = c.MACLayer.HeaderBits()
}

var ErrInvalid = errors.New("invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	if c.Device.SampleRate <= 0 {
		return invalid("sample rate %v", c.Device.SampleRate)
	}
	if c.Device.BufferSize <= 0 {
		return invalid("buffer size %d", c.Device.BufferSize)
	}
	switch c.Device.Backend {
	case BackendLoopback, BackendPortAudio, BackendASIO:
	default:
		return invalid("unknown backend %q", c.Device.Backend)
	}
	if err := c.PhysicalLayer.Validate(); err != nil {
		return err
	}
	if err := c.MACLayer.Validate(); err != nil {
		return err
	}
	if _, err := c.TUN.Prefix(c.MACLayer.Address); err != nil {
		return invalid("tun ip %q", c.TUN.IP)
	}
	return nil
}

func (p *PhysicalConfig) Validate() error {
	switch p.Domain {
	case DomainInt, DomainFloat:
	default:
		return invalid("unknown domain %q", p.Domain)
	}
	switch p.Modulation {
	case ModulationOFDM, ModulationNRZI:
	default:
		return invalid("unknown modulation %q", p.Modulation)
	}
	if p.BitRate <= 0 || p.SamplesPerSymbol() < 4 {
		return invalid("bit rate %d leaves %d samples per symbol", p.BitRate, p.SamplesPerSymbol())
	}
	if p.Carrier.CPLength < 0 || p.Carrier.CPLength >= p.SamplesPerSymbol() {
		return invalid("cyclic prefix %d", p.Carrier.CPLength)
	}
	if p.Modulation == ModulationOFDM && len(p.CarrierFrequencies()) == 0 {
		return invalid("no carrier in [%v, %v]", p.Carrier.MinFreq, p.Carrier.MaxFreq)
	}
	if p.Preamble.Length < 2 || p.Preamble.ThresholdFactor < 1 {
		return invalid("preamble length %d factor %d", p.Preamble.Length, p.Preamble.ThresholdFactor)
	}
	if p.LineCode.SamplesPerBit < 1 {
		return invalid("samples per bit %d", p.LineCode.SamplesPerBit)
	}
	if p.LengthBits < 4 || p.LengthBits > 16 {
		return invalid("length field of %d bits", p.LengthBits)
	}
	if p.PayloadSymbolLimit < 0 || p.MaxLength() >= 1<<p.LengthBits {
		return invalid("payload limit %d does not fit a %d bit length field", p.PayloadSymbolLimit, p.LengthBits)
	}
	if p.RingCapacity < p.Preamble.Length*4 {
		return invalid("ring capacity %d", p.RingCapacity)
	}
	return nil
}

func (m *MACConfig) Validate() error {
	if m.AddressBits < 1 || m.AddressBits > 8 {
		return invalid("address bits %d", m.AddressBits)
	}
	if m.SeqBits < 2 || m.SeqBits > 8 {
		return invalid("sequence bits %d", m.SeqBits)
	}
	if m.Address < 0 || m.Address >= m.Broadcast() {
		return invalid("address %d", m.Address)
	}
	if m.WindowSize < 1 || m.WindowSize > m.SeqLimit()/2 {
		return invalid("window size %d with %d sequence numbers", m.WindowSize, m.SeqLimit())
	}
	if m.Slot < 1 || m.MaxBackoff < 1 || m.AckTimeout < 1 || m.MaxTimeoutRounds < 1 {
		return invalid("slot %d backoff %d ack timeout %d rounds %d", m.Slot, m.MaxBackoff, m.AckTimeout, m.MaxTimeoutRounds)
	}
	pm := m.PowerMonitor
	if pm.Window < 1 || (pm.Exponent != 2 && pm.Exponent != 4) {
		return invalid("power monitor window %d exponent %d", pm.Window, pm.Exponent)
	}
	if pm.BusyThreshold <= 0 || pm.CollisionThreshold <= pm.BusyThreshold {
		return invalid("power thresholds %v %v", pm.BusyThreshold, pm.CollisionThreshold)
	}
	if pm.CollisionRatio <= 1 || pm.EchoGain < 0 || pm.EchoPeriods < 1 {
		return invalid("collision ratio %v echo gain %v over %d periods", pm.CollisionRatio, pm.EchoGain, pm.EchoPeriods)
	}
	return nil
}

// SamplesPerSymbol is the length of one symbol without its cyclic prefix.
func (p *PhysicalConfig) SamplesPerSymbol() int {
	if p.BitRate <= 0 {
		return 0
	}
	return int(p.SampleRate) / p.BitRate
}

// CarrierFrequencies lists the bins k*BitRate inside the carrier band.
// These are orthogonal over one symbol.
func (p *PhysicalConfig) CarrierFrequencies() []float64 {
	var freqs []float64
	if p.BitRate <= 0 {
		return freqs
	}
	nyquist := p.SampleRate / 2
	first := int(math.Ceil(p.Carrier.MinFreq / float64(p.BitRate)))
	for k := max(first, 1); ; k++ {
		f := float64(k * p.BitRate)
		if f > p.Carrier.MaxFreq || f >= nyquist {
			break
		}
		freqs = append(freqs, f)
	}
	return freqs
}

// MinLength and MaxLength bound the value of the length field.
func (p *PhysicalConfig) MinLength() int {
	return p.HeaderBits
}

func (p *PhysicalConfig) MaxLength() int {
	return p.HeaderBits + p.PayloadSymbolLimit
}

func (t *TUNConfig) Prefix(address int) (netip.Prefix, error) {
	if t.IP == "" {
		return netip.PrefixFrom(netip.AddrFrom4([4]byte{172, 18, 0, byte(address + 1)}), 24), nil
	}
	prefix, err := netip.ParsePrefix(t.IP)
	if err != nil {
		return netip.Prefix{}, err
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%v is not IPv4", prefix)
	}
	return prefix, nil
}

func (m *MACConfig) SeqLimit() int {
	return 1 << m.SeqBits
}

// Broadcast is the all-ones address.
func (m *MACConfig) Broadcast() int {
	return m.Layout().Broadcast()
}

// Peer is the default unicast destination.
func (m *MACConfig) Peer() int {
	return m.Address ^ 1
}

func (m *MACConfig) Layout() frame.Layout {
	return frame.Layout{AddressBits: m.AddressBits, SeqBits: m.SeqBits}
}

// HeaderBits is the size of dest, src, seq, ack and the flags byte.
func (m *MACConfig) HeaderBits() int {
	return m.Layout().Bits()
}
