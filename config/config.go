package config

import "time"

type InstrumentConf struct {
	Address        string        `koanf:"address"`
	Port           int           `koanf:"port"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	IOTimeout      time.Duration `koanf:"io_timeout"`
	MaxRecordBytes int           `koanf:"max_record_bytes"`
}

type CaptureConf struct {
	Channels     []string      `koanf:"channels"`
	TriggerMode  string        `koanf:"trigger_mode"`
	RecordLength int           `koanf:"record_length"`
	Timeout      time.Duration `koanf:"timeout"`
	PollInterval time.Duration `koanf:"poll_interval"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

type LiveConf struct {
	Channels    []string `koanf:"channels"`
	TargetFPS   float64  `koanf:"target_fps"`
	Decimation  int      `koanf:"decimation_factor"`
	WindowSize  int      `koanf:"window_size"`
	MaxFailures int      `koanf:"max_consecutive_failures"`
}

type SinkConf struct {
	BufferDepth int `koanf:"buffer_depth"`
}

type DecoderConf struct {
	Protocol  string  `koanf:"protocol"`
	Threshold float64 `koanf:"threshold"`

	UART UARTConf `koanf:"uart"`
	SPI  SPIConf  `koanf:"spi"`
	I2C  I2CConf  `koanf:"i2c"`
	CAN  CANConf  `koanf:"can"`
}

type UARTConf struct {
	DataChannel string `koanf:"data_channel"`
	BaudRate    int    `koanf:"baud_rate"`
	DataBits    int    `koanf:"data_bits"`
	StopBits    int    `koanf:"stop_bits"`
	Parity      string `koanf:"parity"`
	IdleHigh    bool   `koanf:"idle_high"`
	LSBFirst    bool   `koanf:"lsb_first"`
}

type SPIConf struct {
	ClockChannel string `koanf:"clock_channel"`
	DataChannel  string `koanf:"data_channel"`
	WordSize     int    `koanf:"word_size"`
	CPOL         int    `koanf:"cpol"`
	CPHA         int    `koanf:"cpha"`
	LSBFirst     bool   `koanf:"lsb_first"`
}

type I2CConf struct {
	ClockChannel string `koanf:"clock_channel"`
	DataChannel  string `koanf:"data_channel"`
}

type CANConf struct {
	DataChannel string `koanf:"data_channel"`
	BitRate     int    `koanf:"bit_rate"`
}
