package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mikesmitty/rtd"
	"github.com/mikesmitty/rtd/max31865"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var log zerolog.Logger

func init() {
	cw := zerolog.ConsoleWriter{Out: os.Stderr}
	log = zerolog.New(cw).With().Timestamp().Logger()
}

func typeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "type",
		Aliases: []string{"t"},
		Value:   "pt100",
		Usage:   "sensor type (PT100, PT200, PT500 or PT1000)",
	}
}

func main() {
	app := &cli.App{
		Name:  "rtd",
		Usage: "convert between resistance and temperature of platinum RTDs",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if c.Bool("debug") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "temperature",
				Usage:     "temperature in °C from resistance in ohm",
				ArgsUsage: "<ohm>...",
				Flags:     []cli.Flag{typeFlag()},
				Action:    temperature,
			},
			{
				Name:      "resistance",
				Usage:     "resistance in ohm from temperature in °C",
				ArgsUsage: "<celsius>...",
				Flags:     []cli.Flag{typeFlag()},
				Action:    resistance,
			},
			{
				Name:      "adc",
				Usage:     "resistance from ratiometric ADC codes",
				ArgsUsage: "<code>...",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "ref", Value: 430, Usage: "reference resistor in ohm"},
					&cli.UintFlag{Name: "bits", Value: 24, Usage: "ADC resolution in bits"},
					&cli.UintFlag{Name: "gain", Value: 1, Usage: "PGA gain"},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "also convert to temperature for this sensor type"},
				},
				Action: adc,
			},
			{
				Name:  "sense",
				Usage: "read a MAX31865 over SPI",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bus", Aliases: []string{"b"}, Usage: "name of the SPI bus"},
					typeFlag(),
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
					&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "time between readings"},
					&cli.IntFlag{Name: "count", Usage: "number of readings, 0 for no limit"},
				},
				Action: sense,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("rtd")
	}
}

func parseType(c *cli.Context) (rtd.RTDType, error) {
	typ, err := rtd.ParseRTDType(c.String("type"))
	if err != nil {
		return typ, fmt.Errorf("sensor type %q: %w", c.String("type"), err)
	}
	return typ, nil
}

func parseArgs(c *cli.Context) ([]float64, error) {
	if c.NArg() == 0 {
		return nil, errors.New("missing argument")
	}
	vals := make([]float64, 0, c.NArg())
	for _, a := range c.Args().Slice() {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func temperature(c *cli.Context) error {
	typ, err := parseType(c)
	if err != nil {
		return err
	}
	vals, err := parseArgs(c)
	if err != nil {
		return err
	}
	for _, r := range vals {
		t, err := rtd.TemperatureFromResistance(r, typ)
		switch {
		case errors.Is(err, rtd.ErrUncorrected):
			log.Warn().Str("type", typ.String()).Float64("ohm", r).Msg("no sub-zero correction, result is approximate")
		case err != nil:
			log.Error().Err(err).Str("type", typ.String()).Float64("ohm", r).Msg("conversion failed")
			continue
		}
		fmt.Printf("%g\t%.4f\n", r, t)
	}
	return nil
}

func resistance(c *cli.Context) error {
	typ, err := parseType(c)
	if err != nil {
		return err
	}
	vals, err := parseArgs(c)
	if err != nil {
		return err
	}
	for _, t := range vals {
		r, err := rtd.ResistanceFromTemperature(t, typ)
		if err != nil {
			log.Error().Err(err).Str("type", typ.String()).Float64("celsius", t).Msg("conversion failed")
			continue
		}
		fmt.Printf("%g\t%.4f\n", t, r)
	}
	return nil
}

func adc(c *cli.Context) error {
	res := rtd.ADCResolution(c.Uint("bits"))
	if !res.Valid() {
		return fmt.Errorf("resolution %d: %w", c.Uint("bits"), rtd.ErrNonexistentType)
	}
	var (
		typ     rtd.RTDType
		withTyp = c.IsSet("type")
		err     error
	)
	if withTyp {
		if typ, err = parseType(c); err != nil {
			return err
		}
	}
	log.Debug().Str("resolution", res.String()).Uint32("max", res.MaxCode()).Msg("adc")

	if c.NArg() == 0 {
		return errors.New("missing argument")
	}
	for _, a := range c.Args().Slice() {
		code, err := strconv.ParseUint(a, 0, 32)
		if err != nil {
			return err
		}
		r, err := rtd.ResistanceFromADCCode(uint32(code), uint32(c.Uint("ref")), res, uint32(c.Uint("gain")))
		if err != nil {
			log.Error().Err(err).Uint64("code", code).Msg("conversion failed")
			continue
		}
		if !withTyp {
			fmt.Printf("%d\t%.4f\n", code, r)
			continue
		}
		t, err := rtd.TemperatureFromResistance(r, typ)
		if err != nil && !errors.Is(err, rtd.ErrUncorrected) {
			log.Error().Err(err).Uint64("code", code).Float64("ohm", r).Msg("conversion failed")
			continue
		}
		fmt.Printf("%d\t%.4f\t%.4f\n", code, r, t)
	}
	return nil
}

func sense(c *cli.Context) error {
	cfg := NewConfig()
	if path := c.String("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return err
		}
	}
	if c.IsSet("bus") {
		cfg.Bus = c.String("bus")
	}
	if c.IsSet("type") {
		cfg.Type = c.String("type")
	}
	opts, err := cfg.Opts()
	if err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return err
	}

	p, err := spireg.Open(cfg.Bus)
	if err != nil {
		return err
	}
	defer p.Close()

	dev, err := max31865.New(p, opts)
	if err != nil {
		return err
	}
	defer dev.Halt()
	log.Info().Str("device", dev.String()).Str("type", opts.RTDType.String()).
		Float64("ref", opts.RefResistor).Msg("connected")

	ticker := time.NewTicker(c.Duration("interval"))
	defer ticker.Stop()

	for n := c.Int("count"); ; {
		var e physic.Env
		if err := dev.Sense(&e); err != nil {
			log.Error().Err(err).Msg("sense")
		} else {
			log.Info().Float64("celsius", e.Temperature.Celsius()).
				Str("resistance", dev.Resistance().String()).Msg("temperature")
		}

		if n--; n == 0 {
			return nil
		}
		<-ticker.C
	}
}
