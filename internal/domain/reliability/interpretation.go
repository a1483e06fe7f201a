package reliability

// Interpretation is the qualitative band an ICC value falls in.
type Interpretation string

// Interpretation bands, lowest to highest.
const (
	Poor      Interpretation = "poor"
	Fair      Interpretation = "fair"
	Moderate  Interpretation = "moderate"
	Good      Interpretation = "good"
	Excellent Interpretation = "excellent"
)

// Band upper bounds (exclusive).
const (
	poorBelow     = 0.4
	fairBelow     = 0.6
	moderateBelow = 0.75
	goodBelow     = 0.9
)

// Interpret maps an ICC value to its band. Pass the unrounded value.
func Interpret(icc float64) Interpretation {
	switch {
	case icc < poorBelow:
		return Poor
	case icc < fairBelow:
		return Fair
	case icc < moderateBelow:
		return Moderate
	case icc < goodBelow:
		return Good
	default:
		return Excellent
	}
}
