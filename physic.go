package rtd

import (
	"math"

	"periph.io/x/conn/v3/physic"
)

// ToTemperature converts c in °C to a physic.Temperature.
func ToTemperature(c float64) physic.Temperature {
	return physic.Temperature(math.Round(c*float64(physic.Celsius))) + physic.ZeroCelsius
}

// ToResistance converts r in ohm to a physic.ElectricResistance.
func ToResistance(r float64) physic.ElectricResistance {
	return physic.ElectricResistance(math.Round(r * float64(physic.Ohm)))
}

// FromResistance converts r to ohm.
func FromResistance(r physic.ElectricResistance) float64 {
	return float64(r) / float64(physic.Ohm)
}

// SenseTemperature is TemperatureFromResistance over periph units. Like
// TemperatureFromResistance it returns a usable value alongside
// ErrUncorrected.
func SenseTemperature(r physic.ElectricResistance, typ RTDType) (physic.Temperature, error) {
	t, err := TemperatureFromResistance(FromResistance(r), typ)
	if err != nil && err != ErrUncorrected {
		return 0, err
	}
	return ToTemperature(t), err
}
