package rtd

import (
	"fmt"
	"strings"
)

// RTDType identifies a platinum RTD class by its nominal resistance at 0°C.
// New members may be added; callers must not assume the set is closed.
type RTDType int

const (
	PT100 RTDType = iota
	PT200
	PT500
	PT1000
)

// Nominal returns the resistance in ohm at 0°C, or 0 for an unknown type.
func (t RTDType) Nominal() float64 {
	switch t {
	case PT100:
		return 100
	case PT200:
		return 200
	case PT500:
		return 500
	case PT1000:
		return 1000
	}
	return 0
}

func (t RTDType) Valid() bool {
	return t.Nominal() != 0
}

// HasCorrection reports whether a sub-zero correction polynomial has been
// derived for t.
func (t RTDType) HasCorrection() bool {
	_, ok, err := correction(t)
	return ok && err == nil
}

func (t RTDType) String() string {
	switch t {
	case PT100:
		return "PT100"
	case PT200:
		return "PT200"
	case PT500:
		return "PT500"
	case PT1000:
		return "PT1000"
	}
	return fmt.Sprintf("RTDType(%d)", int(t))
}

// ParseRTDType accepts the names returned by String, case-insensitively.
func ParseRTDType(s string) (RTDType, error) {
	for _, t := range [...]RTDType{PT100, PT200, PT500, PT1000} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, ErrNonexistentType
}

// ADCResolution is the bit width of an analog-to-digital converter.
// New members may be added; callers must not assume the set is closed.
type ADCResolution uint8

const (
	ADC8  ADCResolution = 8
	ADC10 ADCResolution = 10
	ADC12 ADCResolution = 12
	ADC14 ADCResolution = 14
	ADC16 ADCResolution = 16
	ADC18 ADCResolution = 18
	ADC20 ADCResolution = 20
	ADC22 ADCResolution = 22
	ADC24 ADCResolution = 24
)

// MaxCode returns the largest unsigned code of the converter, 2^n - 1, or 0
// for an unknown resolution.
func (r ADCResolution) MaxCode() uint32 {
	switch r {
	case ADC8, ADC10, ADC12, ADC14, ADC16, ADC18, ADC20, ADC22, ADC24:
		return 1<<uint(r) - 1
	}
	return 0
}

func (r ADCResolution) Bits() int {
	return int(r)
}

func (r ADCResolution) Valid() bool {
	return r.MaxCode() != 0
}

func (r ADCResolution) String() string {
	return fmt.Sprintf("%d-bit", uint8(r))
}

// Callendar-Van Dusen coefficients, IEC 60751
const (
	A float64 = 3.9083e-3
	B float64 = -5.7750e-7
	C float64 = -4.1830e-12
)

// Temperature domain of the model in °C
const (
	MinTemperature float64 = -200
	MaxTemperature float64 = 850
)

// Polynomial holds coefficients in ascending order: p[i] multiplies r^i.
type Polynomial [6]float64

// correction returns the residual of the quadratic inverse against the cubic
// model below 0°C, as a function of resistance. The PT1000 table is the PT100
// fit rescaled by 10^-i. ok is false for known types that have no derived
// polynomial yet.
func correction(t RTDType) (p Polynomial, ok bool, err error) {
	switch t {
	case PT100:
		return Polynomial{
			4.84112370e+00,
			-1.61875985e-01,
			1.80282972e-03,
			-5.34227299e-06,
			-2.85842067e-08,
			1.51892983e-10,
		}, true, nil
	case PT1000:
		return Polynomial{
			4.84112370e+00,
			-1.61875985e-02,
			1.80282972e-05,
			-5.34227299e-09,
			-2.85842067e-12,
			1.51892983e-15,
		}, true, nil
	case PT200, PT500:
		// TODO: fit correction polynomials for PT200 and PT500.
		return Polynomial{}, false, nil
	}
	return Polynomial{}, false, ErrNonexistentType
}
