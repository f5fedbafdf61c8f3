package max31865

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mikesmitty/rtd"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// fakeChip emulates the MAX31865 register file.
type fakeChip struct {
	mu    sync.Mutex
	regs  [8]byte
	fault byte // re-asserted after every fault clear
}

func (c *fakeChip) String() string      { return "fake" }
func (c *fakeChip) Duplex() conn.Duplex { return conn.Full }
func (c *fakeChip) TxPackets([]spi.Packet) error {
	return errors.New("not implemented")
}

func (c *fakeChip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(w) == 0 {
		return errors.New("empty write")
	}
	if w[0]&0x80 != 0 {
		for i := 0; i+1 < len(w); i += 2 {
			reg, v := w[i]&0x7F, w[i+1]
			if reg == configReg && v&(1<<configFlagFaultClear) != 0 {
				v &^= 1 << configFlagFaultClear
				c.regs[faultStatReg] = c.fault
			}
			c.regs[reg%8] = v
		}
		return nil
	}
	for i := 1; i < len(r); i++ {
		r[i] = c.regs[(int(w[0])+i-1)%8]
	}
	return nil
}

func (c *fakeChip) setResistance(ohm, ref float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code := uint16(ohm/ref*codeFullScale) << 1
	c.regs[rtdMsbReg] = byte(code >> 8)
	c.regs[rtdLsbReg] = byte(code)
}

func (c *fakeChip) reg(r uint8) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[r]
}

type fakePort struct {
	chip *fakeChip
}

func (p *fakePort) String() string { return "SPI0.0" }
func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	return p.chip, nil
}

func newDev(t *testing.T, opts *Opts) (*Dev, *fakeChip) {
	t.Helper()
	chip := &fakeChip{}
	d, err := New(&fakePort{chip: chip}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return d, chip
}

func TestNew(t *testing.T) {
	t.Run("Config", func(t *testing.T) {
		_, chip := newDev(t, nil)
		cfg := chip.reg(configReg)
		if cfg&(1<<configFlagWireCount) == 0 {
			t.Errorf("expected 3-wire mode, config %#x", cfg)
		}
		if cfg&(1<<configFlagBiasVoltage) != 0 || cfg&(1<<configFlagContinuousMode) != 0 {
			t.Errorf("expected bias and continuous mode off, config %#x", cfg)
		}
		if chip.reg(hFaultMsbReg) != 0xFF || chip.reg(hFaultLsbReg) != 0xFF ||
			chip.reg(lFaultMsbReg) != 0 || chip.reg(lFaultLsbReg) != 0 {
			t.Error("unexpected fault thresholds")
		}
	})

	t.Run("ContinuousFilter50Hz", func(t *testing.T) {
		d, chip := newDev(t, &Opts{ContinuousMode: true, Filter50Hz: true, RefResistor: 430, RTDType: rtd.PT100, WireCount: WireCount4})
		cfg := chip.reg(configReg)
		if cfg&(1<<configFlagBiasVoltage) == 0 || cfg&(1<<configFlagContinuousMode) == 0 || cfg&(1<<configFlagFilter50Hz) == 0 {
			t.Errorf("unexpected config %#x", cfg)
		}
		if cfg&(1<<configFlagWireCount) != 0 {
			t.Errorf("expected 2/4-wire mode, config %#x", cfg)
		}
		if d.measDelay != 21*time.Millisecond {
			t.Errorf("expected 21ms, got %s", d.measDelay)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		if _, err := New(&fakePort{chip: &fakeChip{}}, &Opts{RefResistor: 430, RTDType: rtd.RTDType(9)}); err == nil {
			t.Error("expected error for invalid RTD type")
		}
		if _, err := New(&fakePort{chip: &fakeChip{}}, &Opts{RTDType: rtd.PT100}); err == nil {
			t.Error("expected error for missing reference resistor")
		}
	})
}

func TestSense(t *testing.T) {
	tests := []struct {
		name string
		opts *Opts
		temp float64
	}{
		{"PT100", AdafruitPT100(), 100},
		{"PT100Cold", AdafruitPT100(), -40},
		{"PT1000", AdafruitPT1000(), -50},
		{"PT1000Hot", AdafruitPT1000(), 300},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, chip := newDev(t, tc.opts)
			r, err := rtd.ResistanceFromTemperature(tc.temp, tc.opts.RTDType)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			chip.setResistance(r, tc.opts.RefResistor)

			var e physic.Env
			if err := d.Sense(&e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			// one LSB is about 0.034°C for both presets
			if got := e.Temperature.Celsius(); math.Abs(got-tc.temp) > 0.05 {
				t.Errorf("expected %f°C, got %s", tc.temp, e.Temperature)
			}
			if got := rtd.FromResistance(d.Resistance()); math.Abs(got-r) > tc.opts.RefResistor/codeFullScale {
				t.Errorf("expected %f ohm, got %f", r, got)
			}
			if chip.reg(configReg)&(1<<configFlagBiasVoltage) != 0 {
				t.Error("expected bias voltage off after one-shot reading")
			}
		})
	}

	t.Run("OpenCircuit", func(t *testing.T) {
		d, chip := newDev(t, nil)
		chip.setResistance(429.9, 430)
		var e physic.Env
		err := d.Sense(&e)
		if !errors.Is(err, rtd.ErrOutOfBounds) {
			t.Errorf("expected ErrOutOfBounds, got %v", err)
		}
	})

	t.Run("Fault", func(t *testing.T) {
		d, chip := newDev(t, nil)
		chip.setResistance(100, 430)
		chip.fault = 1 << faultHighThresh
		var e physic.Env
		if err := d.Sense(&e); !errors.Is(err, ErrHighThreshold) {
			t.Errorf("expected ErrHighThreshold, got %v", err)
		}
		chip.fault = 1 << faultOvUv
		if err := d.Sense(&e); !errors.Is(err, ErrOvUv) {
			t.Errorf("expected ErrOvUv, got %v", err)
		}
	})

	t.Run("Uncorrected", func(t *testing.T) {
		d, chip := newDev(t, &Opts{RefResistor: 860, RTDType: rtd.PT200, WireCount: WireCount3})
		chip.setResistance(150, 860)
		var e physic.Env
		if err := d.Sense(&e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c := e.Temperature.Celsius(); c > -60 || c < -70 {
			t.Errorf("expected about -63°C, got %s", e.Temperature)
		}
	})
}

func TestSenseContinuous(t *testing.T) {
	opts := AdafruitPT100()
	opts.ContinuousMode = true
	d, chip := newDev(t, opts)
	chip.setResistance(100, 430)

	c, err := d.SenseContinuous(time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case e := <-c:
			if got := e.Temperature.Celsius(); math.Abs(got) > 0.05 {
				t.Errorf("expected 0°C, got %s", e.Temperature)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for reading")
		}
	}

	var e physic.Env
	if err := d.Sense(&e); err == nil {
		t.Error("expected error while sensing continuously")
	}

	if err := d.Halt(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range c {
	}
	if err := d.Sense(&e); err != nil {
		t.Errorf("unexpected error after halt: %v", err)
	}
}

func TestSetTemperatureThreshold(t *testing.T) {
	d, chip := newDev(t, nil)
	if err := d.SetTemperatureThreshold(-40, 150); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 6421 << 1 and 11988 << 1
	if chip.reg(lFaultMsbReg) != 0x32 || chip.reg(lFaultLsbReg) != 0x2A {
		t.Errorf("unexpected low threshold %#x%02x", chip.reg(lFaultMsbReg), chip.reg(lFaultLsbReg))
	}
	if chip.reg(hFaultMsbReg) != 0x5D || chip.reg(hFaultLsbReg) != 0xA8 {
		t.Errorf("unexpected high threshold %#x%02x", chip.reg(hFaultMsbReg), chip.reg(hFaultLsbReg))
	}

	if err := d.SetTemperatureThreshold(-250, 150); !errors.Is(err, rtd.ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}
