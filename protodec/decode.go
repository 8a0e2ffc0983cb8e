// Package protodec turns captured waveforms into decoded serial-bus traffic.
//
// Decode is a pure function: identical inputs with an empty carry produce
// identical output. The only state that survives a call is the explicit Carry
// value, which holds the unconsumed tail of a frame so symbol boundaries are
// not lost across live-frame seams.
package protodec

import (
	"fmt"
	"strings"

	"github.com/little-did-I-know/SCPI-Instrument-Control/config"
	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"
)

// Protocol selects the bus decoder.
type Protocol int

const (
	UART Protocol = iota
	SPI
	I2C
	CAN
)

func (p Protocol) String() string {
	switch p {
	case UART:
		return "uart"
	case SPI:
		return "spi"
	case I2C:
		return "i2c"
	case CAN:
		return "can"
	default:
		return "unknown"
	}
}

// Validity qualifies a decoded packet or field.
type Validity int

const (
	ValidityOK Validity = iota
	// ValidityIncomplete marks a symbol cut off by the end of the sample
	// sequence. The packet is still emitted so a partial decode can render.
	ValidityIncomplete
	// ValidityFramingError marks a start/stop/stuffing violation. Only the
	// affected packet degrades; the decode continues.
	ValidityFramingError
	// ValidityParityError marks a UART parity mismatch.
	ValidityParityError
	// ValidityNack marks an I2C byte the addressed device did not acknowledge.
	ValidityNack
)

func (v Validity) String() string {
	switch v {
	case ValidityOK:
		return "ok"
	case ValidityIncomplete:
		return "incomplete"
	case ValidityFramingError:
		return "framing-error"
	case ValidityParityError:
		return "parity-error"
	case ValidityNack:
		return "nack"
	default:
		return "unknown"
	}
}

// Field is one named value inside a decoded packet.
type Field struct {
	Name     string
	Value    uint64
	Validity Validity
}

// Packet is one decoded protocol unit. Times are in seconds on the same
// axis as the source frame's TimeOffset. Immutable once produced.
type Packet struct {
	Protocol  Protocol
	StartTime float64
	EndTime   float64
	Validity  Validity
	Fields    []Field
}

// Field returns the first field with the given name, if present.
func (p Packet) Field(name string) (Field, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Config is the tagged decoder configuration: Protocol picks the variant,
// the matching sub-config supplies its parameters.
type Config struct {
	Protocol Protocol
	// Threshold is the voltage above which a sample reads as logic high.
	Threshold float64

	UART UARTConfig
	SPI  SPIConfig
	I2C  I2CConfig
	CAN  CANConfig
}

type UARTConfig struct {
	BaudRate int
	DataBits int
	StopBits int
	// Parity is "none", "even" or "odd".
	Parity string
	// IdleHigh is the line polarity; standard UART idles high.
	IdleHigh bool
	LSBFirst bool
}

type SPIConfig struct {
	WordSize int
	CPOL     int
	CPHA     int
	LSBFirst bool
}

type I2CConfig struct{}

type CANConfig struct {
	BitRate int
}

// Carry threads partial-bit state between consecutive Decode calls on live
// frames of the same session. The zero value means no carried state. For
// clocked protocols the carry keeps the clock channel's tail too, so the
// resumed word still has its sampling edges.
type Carry struct {
	protocol   Protocol
	tail       []float64
	clockTail  []float64
	sampleRate float64
	timeOffset float64
	valid      bool
}

// Empty reports whether the carry holds no pending samples.
func (c Carry) Empty() bool { return !c.valid || len(c.tail) == 0 }

// Validate checks a decoder configuration without running a decode.
func (cfg Config) Validate() error {
	switch cfg.Protocol {
	case UART:
		u := cfg.UART
		if u.BaudRate <= 0 {
			return fmt.Errorf("protodec: uart baud_rate must be positive")
		}
		if u.DataBits < 5 || u.DataBits > 9 {
			return fmt.Errorf("protodec: uart data_bits %d out of range [5,9]", u.DataBits)
		}
		if u.StopBits < 1 || u.StopBits > 2 {
			return fmt.Errorf("protodec: uart stop_bits %d out of range [1,2]", u.StopBits)
		}
		switch strings.ToLower(u.Parity) {
		case "", "none", "even", "odd":
		default:
			return fmt.Errorf("protodec: unknown uart parity %q", u.Parity)
		}
	case SPI:
		if cfg.SPI.WordSize < 1 || cfg.SPI.WordSize > 64 {
			return fmt.Errorf("protodec: spi word_size %d out of range [1,64]", cfg.SPI.WordSize)
		}
		if cfg.SPI.CPOL != 0 && cfg.SPI.CPOL != 1 {
			return fmt.Errorf("protodec: spi cpol must be 0 or 1")
		}
		if cfg.SPI.CPHA != 0 && cfg.SPI.CPHA != 1 {
			return fmt.Errorf("protodec: spi cpha must be 0 or 1")
		}
	case I2C:
	case CAN:
		if cfg.CAN.BitRate <= 0 {
			return fmt.Errorf("protodec: can bit_rate must be positive")
		}
	default:
		return fmt.Errorf("protodec: unknown protocol %d", cfg.Protocol)
	}
	return nil
}

// Decode runs the configured protocol decoder over one frame. For SPI and
// I2C, clock carries the clock channel's frame and data the data channel's;
// single-wire protocols ignore clock.
//
// The returned Carry holds the tail of any symbol the frame ended inside.
// Passing it to the next Decode call for the same session completes the
// symbol; the truncated symbol is still emitted here with
// ValidityIncomplete so a partial decode can render immediately.
func Decode(data sink.Frame, clock *sink.Frame, cfg Config, carry Carry) ([]Packet, Carry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Carry{}, err
	}
	if data.SampleRate <= 0 {
		return nil, Carry{}, fmt.Errorf("protodec: frame has no sample rate")
	}
	if carry.valid && carry.protocol != cfg.Protocol {
		return nil, Carry{}, fmt.Errorf("protodec: carry is for %s, decoder is %s", carry.protocol, cfg.Protocol)
	}

	resumed := carry.valid && len(carry.tail) > 0

	samples := data.Samples
	t0 := data.TimeOffset
	if resumed {
		joined := make([]float64, 0, len(carry.tail)+len(data.Samples))
		joined = append(joined, carry.tail...)
		joined = append(joined, data.Samples...)
		samples = joined
		t0 = carry.timeOffset
	}

	var clockSamples []float64
	if clock != nil {
		clockSamples = clock.Samples
		if resumed && len(carry.clockTail) > 0 {
			joined := make([]float64, 0, len(carry.clockTail)+len(clock.Samples))
			joined = append(joined, carry.clockTail...)
			joined = append(joined, clock.Samples...)
			clockSamples = joined
		}
	}

	levels := thresholdLevels(samples, cfg.Threshold)
	rate := data.SampleRate

	var packets []Packet
	var consumed int
	switch cfg.Protocol {
	case UART:
		packets, consumed = decodeUART(levels, rate, t0, cfg.UART)
	case SPI:
		if clock == nil {
			return nil, Carry{}, fmt.Errorf("protodec: spi requires a clock frame")
		}
		packets, consumed = decodeSPI(levels, thresholdLevels(clockSamples, cfg.Threshold), rate, t0, cfg.SPI, resumed)
	case I2C:
		if clock == nil {
			return nil, Carry{}, fmt.Errorf("protodec: i2c requires a clock frame")
		}
		packets, consumed = decodeI2C(levels, thresholdLevels(clockSamples, cfg.Threshold), rate, t0)
	case CAN:
		packets, consumed = decodeCAN(levels, rate, t0, cfg.CAN)
	}

	next := Carry{}
	if consumed < len(samples) {
		next = Carry{
			protocol:   cfg.Protocol,
			tail:       append([]float64(nil), samples[consumed:]...),
			sampleRate: rate,
			timeOffset: t0 + float64(consumed)/rate,
			valid:      true,
		}
		if consumed < len(clockSamples) {
			next.clockTail = append([]float64(nil), clockSamples[consumed:]...)
		}
	}
	return packets, next, nil
}

// FromConf maps the koanf-facing decoder config onto a decoder Config.
func FromConf(conf config.DecoderConf) (Config, error) {
	cfg := Config{Threshold: conf.Threshold}
	switch strings.ToLower(conf.Protocol) {
	case "uart":
		cfg.Protocol = UART
		cfg.UART = UARTConfig{
			BaudRate: conf.UART.BaudRate,
			DataBits: conf.UART.DataBits,
			StopBits: conf.UART.StopBits,
			Parity:   conf.UART.Parity,
			IdleHigh: conf.UART.IdleHigh,
			LSBFirst: conf.UART.LSBFirst,
		}
	case "spi":
		cfg.Protocol = SPI
		cfg.SPI = SPIConfig{
			WordSize: conf.SPI.WordSize,
			CPOL:     conf.SPI.CPOL,
			CPHA:     conf.SPI.CPHA,
			LSBFirst: conf.SPI.LSBFirst,
		}
	case "i2c":
		cfg.Protocol = I2C
	case "can":
		cfg.Protocol = CAN
		cfg.CAN = CANConfig{BitRate: conf.CAN.BitRate}
	default:
		return Config{}, fmt.Errorf("protodec: unknown protocol %q", conf.Protocol)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
