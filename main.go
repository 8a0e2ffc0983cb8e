package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/little-did-I-know/SCPI-Instrument-Control/acquire"
	"github.com/little-did-I-know/SCPI-Instrument-Control/config"
	"github.com/little-did-I-know/SCPI-Instrument-Control/export"
	"github.com/little-did-I-know/SCPI-Instrument-Control/instrument"
	"github.com/little-did-I-know/SCPI-Instrument-Control/measure"
	"github.com/little-did-I-know/SCPI-Instrument-Control/protodec"
	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var cli struct {
	Verbose bool `help:"Prints debug output by default"`
	Profile bool `help:"Output a pprof profile"`
	Sim     bool `help:"Drive a simulated instrument instead of connecting"`
	Probe   struct {
	} `cmd:"" help:"Connect to the instrument and print its identity"`
	Capture struct {
		Decode bool   `help:"Run the configured protocol decoder over the capture"`
		Output string `help:"Write the capture session to a CBOR file"`
	} `cmd:"" help:"Run one triggered acquisition"`
	Live struct {
		Decode   bool          `help:"Decode live frames with the configured protocol"`
		Duration time.Duration `help:"Stop after this long (default: run until interrupted)"`
	} `cmd:"" help:"Stream decimated live frames until interrupted"`
	Screenshot struct {
		Format string `default:"PNG" help:"Image format: PNG, BMP or JPEG"`
		Output string `default:"screen.png" help:"Output file"`
	} `cmd:"" help:"Grab the instrument display"`
}

var configFile = koanf.New(".")

func getConfigPath() string {
	paths := []string{"/etc/scopectl/config.hcl", "~/.config/scopectl/config.hcl", "./config.hcl"}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path
		}
	}
	log.Info("Config file not found!")
	return ""
}

func loadConfig() {
	if err := configFile.Load(file.Provider(getConfigPath()), hcl.Parser(true)); err != nil {
		log.Errorf("Could not read config file: %v", err)
		log.Error("Attempting to use environment variables")
		configFile.Load(env.Provider("", env.Opt{
			Prefix: "SCOPECTL_",
			TransformFunc: func(k, v string) (string, any) {
				key := strings.ToLower(strings.TrimPrefix(k, "SCOPECTL_"))
				k = strings.Replace(key, "_", ".", 1)
				fmt.Printf("Found config env var: %s=%v\n", k, v)
				return k, v
			},
		}), nil)
	}
}

func instrumentConf() config.InstrumentConf {
	return config.InstrumentConf{
		Address:        configFile.String("instrument.address"),
		Port:           configFile.Int("instrument.port"),
		ConnectTimeout: configFile.Duration("instrument.connect_timeout"),
		IOTimeout:      configFile.Duration("instrument.io_timeout"),
		MaxRecordBytes: configFile.Int("instrument.max_record_bytes"),
	}
}

func captureConf() config.CaptureConf {
	return config.CaptureConf{
		Channels:     configFile.Strings("capture.channels"),
		TriggerMode:  configFile.String("capture.trigger_mode"),
		RecordLength: configFile.Int("capture.record_length"),
		Timeout:      configFile.Duration("capture.timeout"),
		PollInterval: configFile.Duration("capture.poll_interval"),
		MaxRetries:   configFile.Int("capture.max_retries"),
		RetryBackoff: configFile.Duration("capture.retry_backoff"),
	}
}

func liveConf() config.LiveConf {
	return config.LiveConf{
		Channels:    configFile.Strings("live.channels"),
		TargetFPS:   configFile.Float64("live.target_fps"),
		Decimation:  configFile.Int("live.decimation_factor"),
		WindowSize:  configFile.Int("live.window_size"),
		MaxFailures: configFile.Int("live.max_consecutive_failures"),
	}
}

func decoderConf() config.DecoderConf {
	return config.DecoderConf{
		Protocol:  configFile.String("decoder.protocol"),
		Threshold: configFile.Float64("decoder.threshold"),
		UART: config.UARTConf{
			DataChannel: configFile.String("decoder.uart.data_channel"),
			BaudRate:    configFile.Int("decoder.uart.baud_rate"),
			DataBits:    configFile.Int("decoder.uart.data_bits"),
			StopBits:    configFile.Int("decoder.uart.stop_bits"),
			Parity:      configFile.String("decoder.uart.parity"),
			IdleHigh:    configFile.Bool("decoder.uart.idle_high"),
			LSBFirst:    configFile.Bool("decoder.uart.lsb_first"),
		},
		SPI: config.SPIConf{
			ClockChannel: configFile.String("decoder.spi.clock_channel"),
			DataChannel:  configFile.String("decoder.spi.data_channel"),
			WordSize:     configFile.Int("decoder.spi.word_size"),
			CPOL:         configFile.Int("decoder.spi.cpol"),
			CPHA:         configFile.Int("decoder.spi.cpha"),
			LSBFirst:     configFile.Bool("decoder.spi.lsb_first"),
		},
		I2C: config.I2CConf{
			ClockChannel: configFile.String("decoder.i2c.clock_channel"),
			DataChannel:  configFile.String("decoder.i2c.data_channel"),
		},
		CAN: config.CANConf{
			DataChannel: configFile.String("decoder.can.data_channel"),
			BitRate:     configFile.Int("decoder.can.bit_rate"),
		},
	}
}

func openChannel() (instrument.Channel, error) {
	if cli.Sim {
		log.Info("Using simulated instrument")
		return instrument.NewSim(), nil
	}
	return instrument.Dial(instrumentConf())
}

// decoderChannels names the data channel and, for clocked protocols, the
// clock channel the decoder reads from.
func decoderChannels(conf config.DecoderConf) (data, clock string) {
	switch strings.ToLower(conf.Protocol) {
	case "uart":
		return conf.UART.DataChannel, ""
	case "spi":
		return conf.SPI.DataChannel, conf.SPI.ClockChannel
	case "i2c":
		return conf.I2C.DataChannel, conf.I2C.ClockChannel
	case "can":
		return conf.CAN.DataChannel, ""
	default:
		return "", ""
	}
}

func runCapture() error {
	ch, err := openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	scope := instrument.NewScope(ch)
	conf := captureConf()
	claim := acquire.NewClaim()
	frameBus := sink.NewBus[sink.Frame]()
	defer frameBus.Close()

	worker := acquire.NewCaptureWorker(scope, frameBus, claim, conf)
	results, err := worker.Submit(acquire.CaptureRequest{
		Channels:     conf.Channels,
		TriggerMode:  conf.TriggerMode,
		RecordLength: conf.RecordLength,
		Timeout:      conf.Timeout,
	})
	if err != nil {
		return err
	}
	res := <-results
	if res.Err != nil {
		return res.Err
	}

	for _, f := range res.Frames {
		m := measure.Analyze(f)
		log.Infof("%s: %d samples @ %.3g Sa/s  Vpp=%.3gV mean=%.3gV rms=%.3gV f=%.4gHz",
			f.ChannelID, len(f.Samples), f.SampleRate, m.Vpp, m.Mean, m.RMS, m.Frequency)
	}

	var packets []protodec.Packet
	if cli.Capture.Decode {
		dconf := decoderConf()
		cfg, err := protodec.FromConf(dconf)
		if err != nil {
			return err
		}
		dataCh, clockCh := decoderChannels(dconf)
		dataFrame, clockFrame := pickFrames(res.Frames, dataCh, clockCh)
		if dataFrame == nil {
			return fmt.Errorf("decoder data channel %q was not captured", dataCh)
		}
		packets, _, err = protodec.Decode(*dataFrame, clockFrame, cfg, protodec.Carry{})
		if err != nil {
			return err
		}
		for _, p := range packets {
			logPacket(p)
		}
	}

	if cli.Capture.Output != "" {
		idn, _ := scope.Identify()
		sess := export.NewSession(idn, res.TraceID, res.Frames, packets)
		if err := export.WriteFile(cli.Capture.Output, sess); err != nil {
			return err
		}
		log.Infof("Wrote session to %s", cli.Capture.Output)
	}
	return nil
}

func pickFrames(frames []sink.Frame, dataCh, clockCh string) (data, clock *sink.Frame) {
	for i := range frames {
		switch frames[i].ChannelID {
		case dataCh:
			data = &frames[i]
		case clockCh:
			clock = &frames[i]
		}
	}
	return data, clock
}

func logPacket(p protodec.Packet) {
	var parts []string
	for _, f := range p.Fields {
		if f.Validity == protodec.ValidityOK {
			parts = append(parts, fmt.Sprintf("%s=0x%X", f.Name, f.Value))
		} else {
			parts = append(parts, fmt.Sprintf("%s=0x%X(%s)", f.Name, f.Value, f.Validity))
		}
	}
	if p.Validity == protodec.ValidityOK {
		log.Infof("[%s] %.6fs-%.6fs %s", p.Protocol, p.StartTime, p.EndTime, strings.Join(parts, " "))
	} else {
		log.Warnf("[%s] %.6fs-%.6fs %s (%s)", p.Protocol, p.StartTime, p.EndTime, strings.Join(parts, " "), p.Validity)
	}
}

func runLive() error {
	ch, err := openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	scope := instrument.NewScope(ch)
	conf := liveConf()
	claim := acquire.NewClaim()
	frameBus := sink.NewBus[sink.Frame]()
	defer frameBus.Close()

	depth := configFile.Int("sink.buffer_depth")
	if depth <= 0 {
		depth = 16
	}
	frames, err := frameBus.Subscribe("cli", depth)
	if err != nil {
		return err
	}

	worker := acquire.NewLiveWorker(scope, frameBus, claim, conf.MaxFailures)
	sess, err := worker.Start(acquire.LiveConfig{
		Channels:   conf.Channels,
		TargetFPS:  conf.TargetFPS,
		Decimation: conf.Decimation,
		Window:     conf.WindowSize,
	})
	if err != nil {
		return err
	}

	var decodeCfg protodec.Config
	var decodeDataCh, decodeClockCh string
	carries := make(map[string]protodec.Carry)
	latest := make(map[string]sink.Frame)
	if cli.Live.Decode {
		dconf := decoderConf()
		decodeCfg, err = protodec.FromConf(dconf)
		if err != nil {
			sess.Stop()
			return err
		}
		decodeDataCh, decodeClockCh = decoderChannels(dconf)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	var timeout <-chan time.Time
	if cli.Live.Duration > 0 {
		timeout = time.After(cli.Live.Duration)
	}

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return sess.Err()
			}
			log.Infof("%s seq=%d %d samples @ %.3g Sa/s", f.ChannelID, f.Seq, len(f.Samples), f.SampleRate)
			if cli.Live.Decode {
				latest[f.ChannelID] = f
				if f.ChannelID == decodeDataCh {
					var clock *sink.Frame
					if decodeClockCh != "" {
						cf, ok := latest[decodeClockCh]
						if !ok {
							continue
						}
						clock = &cf
					}
					packets, carry, err := protodec.Decode(f, clock, decodeCfg, carries[f.ChannelID])
					if err != nil {
						log.Errorf("decode: %v", err)
						continue
					}
					carries[f.ChannelID] = carry
					for _, p := range packets {
						logPacket(p)
					}
				}
			}
		case <-sess.Done():
			return sess.Err()
		case <-timeout:
			sess.Stop()
			logLiveStats(frameBus, sess)
			return sess.Err()
		case <-sigc:
			log.Info("Interrupted, stopping live session")
			sess.Stop()
			logLiveStats(frameBus, sess)
			return sess.Err()
		}
	}
}

func logLiveStats(bus *sink.Bus[sink.Frame], sess *acquire.Session) {
	if stats, err := bus.Stats("cli"); err == nil {
		log.Infof("Session %s: delivered=%d dropped=%d skipped-cycles=%d", sess.ID(), stats.Sent, sess.Dropped(), sess.ErrorCount())
	}
}

func runScreenshot() error {
	ch, err := openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	data, err := instrument.NewScope(ch).Screenshot(cli.Screenshot.Format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cli.Screenshot.Output, data, 0644); err != nil {
		return err
	}
	log.Infof("Wrote %d bytes to %s", len(data), cli.Screenshot.Output)
	return nil
}

func main() {
	log.Info("Starting scopectl")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(prof)
		defer pprof.StopCPUProfile()
	}

	loadConfig()

	var err error
	switch flags.Command() {
	case "probe":
		var ch instrument.Channel
		if ch, err = openChannel(); err == nil {
			defer ch.Close()
			var idn string
			if idn, err = instrument.NewScope(ch).Identify(); err == nil {
				log.Infof("Instrument: %s", idn)
			}
		}
	case "capture":
		err = runCapture()
	case "live":
		err = runLive()
	case "screenshot":
		err = runScreenshot()
	default:
		log.Info("Command not recognized")
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
