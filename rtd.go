// Package rtd converts between resistance and temperature for platinum RTD
// sensors following IEC 60751 (DIN EN 60751:2009-05), and scales raw ADC codes
// of ratiometric measurements to resistance.
//
// All functions are pure, allocation free and safe for concurrent use.
//
// Below 0°C the model is a quartic in t and has no closed form inverse.
// TemperatureFromResistance uses the quadratic inverse and adds a fitted
// correction polynomial, which keeps the error below 60µK over [-200, 0) for
// PT100 and PT1000. The correction polynomials are from
// https://techoverflow.net/2016/01/02/accurate-calculation-of-pt100pt1000-temperature-from-resistance/
package rtd

import "math"

// ResistanceFromTemperature returns the resistance in ohm of an RTD of type
// typ at temperature t in °C. t must lie in [-200, 850].
func ResistanceFromTemperature(t float64, typ RTDType) (float64, error) {
	r0 := typ.Nominal()
	if r0 == 0 {
		return 0, ErrNonexistentType
	}
	if math.IsNaN(t) || t < MinTemperature || t > MaxTemperature {
		return 0, ErrOutOfBounds
	}
	if t >= 0 {
		return r0 * (1 + A*t + B*math.Pow(t, 2)), nil
	}
	return r0 * (1 + A*t + B*math.Pow(t, 2) + C*(t-100)*math.Pow(t, 3)), nil
}

// TemperatureFromResistance returns the temperature in °C of an RTD of type
// typ measuring r ohm.
//
// For types without a correction polynomial (see RTDType.HasCorrection) a
// resistance below nominal yields the uncorrected estimate together with
// ErrUncorrected.
func TemperatureFromResistance(r float64, typ RTDType) (float64, error) {
	r0 := typ.Nominal()
	if r0 == 0 {
		return 0, ErrNonexistentType
	}
	rMin, rMax := resistanceBounds(typ)

	poly, corrected, err := correction(typ)
	if err != nil {
		return 0, err
	}

	if math.IsNaN(r) {
		return 0, ErrOutOfBounds
	}
	fr := math.Floor(r)
	switch {
	case r0 <= fr && fr <= rMax:
		// t >= 0°C, exact
		return quadraticInverse(r, r0), nil
	case rMin <= fr && fr < r0:
		// t < 0°C
		t := quadraticInverse(r, r0)
		if !corrected {
			return t, ErrUncorrected
		}
		return t + evaluate(r, poly), nil
	}
	return 0, ErrOutOfBounds
}

// ResistanceFromADCCode converts the code of a ratiometric measurement against
// the reference resistor ref (ohm) to resistance in ohm.
func ResistanceFromADCCode(code, ref uint32, res ADCResolution, gain uint32) (float64, error) {
	full := res.MaxCode()
	if full == 0 {
		return 0, ErrNonexistentType
	}
	if gain == 0 || code > full {
		return 0, ErrOutOfBounds
	}
	return float64(code) * float64(ref) / (float64(full) * float64(gain)), nil
}

// ResistanceBounds returns the floored resistances of typ at -200°C and 850°C,
// the range accepted by TemperatureFromResistance.
func ResistanceBounds(typ RTDType) (lo, hi float64, err error) {
	if !typ.Valid() {
		return 0, 0, ErrNonexistentType
	}
	lo, hi = resistanceBounds(typ)
	return lo, hi, nil
}

func resistanceBounds(typ RTDType) (lo, hi float64) {
	lo, _ = ResistanceFromTemperature(MinTemperature, typ)
	hi, _ = ResistanceFromTemperature(MaxTemperature, typ)
	return math.Floor(lo), math.Floor(hi)
}

// quadraticInverse solves r0*(1 + A*t + B*t^2) = r for the root that is
// continuous through 0°C.
func quadraticInverse(r, r0 float64) float64 {
	a := r0 * A
	disc := float64(a*a) - 4*r0*B*(r0-r)
	return (-a + math.Sqrt(disc)) / (2 * r0 * B)
}

// evaluate computes p(r) by Horner's scheme.
func evaluate(r float64, p Polynomial) float64 {
	var v float64
	for i := len(p) - 1; i >= 0; i-- {
		v = v*r + p[i]
	}
	return v
}
