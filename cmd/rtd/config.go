package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mikesmitty/rtd"
	"github.com/mikesmitty/rtd/max31865"
	"gopkg.in/yaml.v2"
)

// Config is the sensor configuration, read from a YAML file and overridden
// by command line flags.
type Config struct {
	Bus            string  `yaml:"bus"`
	Type           string  `yaml:"type"`
	RefResistor    float64 `yaml:"refresistor"`
	Wires          int     `yaml:"wires"`
	ContinuousMode bool    `yaml:"continuous"`
	Filter50Hz     bool    `yaml:"filter50hz"`
}

func NewConfig() *Config {
	return &Config{
		Type:  "pt100",
		Wires: 3,
	}
}

func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}

func (c *Config) Load(r io.Reader) error {
	// an empty file keeps the defaults
	if err := yaml.NewDecoder(r).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Opts converts the configuration to driver options. A zero reference
// resistor selects the Adafruit breakout value for the RTD type.
func (c *Config) Opts() (*max31865.Opts, error) {
	typ, err := rtd.ParseRTDType(c.Type)
	if err != nil {
		return nil, fmt.Errorf("config: sensor type %q: %w", c.Type, err)
	}

	var opts *max31865.Opts
	switch typ {
	case rtd.PT100:
		opts = max31865.AdafruitPT100()
	case rtd.PT1000:
		opts = max31865.AdafruitPT1000()
	default:
		opts = max31865.AdafruitPT100()
		// 4.3 times nominal, as on the Adafruit boards
		opts.RefResistor = 4.3 * typ.Nominal()
	}
	opts.RTDType = typ
	if c.RefResistor > 0 {
		opts.RefResistor = c.RefResistor
	}

	switch c.Wires {
	case 2:
		opts.WireCount = max31865.WireCount2
	case 3:
		opts.WireCount = max31865.WireCount3
	case 4:
		opts.WireCount = max31865.WireCount4
	default:
		return nil, fmt.Errorf("config: invalid wire count: %d", c.Wires)
	}

	opts.ContinuousMode = c.ContinuousMode
	opts.Filter50Hz = c.Filter50Hz
	return opts, nil
}
