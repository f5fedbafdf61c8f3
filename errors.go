package rtd

// Error is a constant error value returned by the conversion functions.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrOutOfBounds is returned for a temperature, resistance or digital
	// code outside the domain of the model.
	ErrOutOfBounds = Error("rtd: value out of bounds")
	// ErrNonexistentType is returned for an RTDType or ADCResolution that has
	// no associated data.
	ErrNonexistentType = Error("rtd: nonexistent type")
	// ErrUncorrected accompanies a valid sub-zero temperature for a type that
	// has no correction polynomial. The value is the quadratic estimate and is
	// less accurate than a corrected one.
	ErrUncorrected = Error("rtd: no sub-zero correction for type")
)
