package properties

import (
	"fmt"
	"os"
)

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

type Color struct {
	R, G, B uint8
}

// Hex renders the color as RRGGBB.
func (c Color) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// NDVIClass is one band of the NDVI color ramp. Values below Upper (and at or
// above the previous class's Upper) belong to the class.
type NDVIClass struct {
	Upper float64
	Label string
	Color Color
}

var NDVIRamp = []NDVIClass{
	{Upper: 0, Label: "Water", Color: Color{0x5a, 0xb4, 0xd6}},
	{Upper: 0.10, Label: "Bare", Color: Color{0xd7, 0x30, 0x27}},
	{Upper: 0.20, Label: "Low", Color: Color{0xf4, 0x6d, 0x43}},
	{Upper: 0.25, Label: "Low+", Color: Color{0xfd, 0xae, 0x61}},
	{Upper: 0.35, Label: "Moderate", Color: Color{0xfe, 0xe0, 0x8b}},
	{Upper: 0.45, Label: "Good", Color: Color{0xd9, 0xef, 0x8b}},
	{Upper: 0.55, Label: "Good+", Color: Color{0xa6, 0xd9, 0x6a}},
	{Upper: 0.65, Label: "High", Color: Color{0x66, 0xbd, 0x63}},
	{Upper: 2, Label: "Very high", Color: Color{0x1a, 0x98, 0x50}},
}

// NoDataColor fills polygons without a value.
var NoDataColor = Color{0x88, 0x88, 0x88}

func NDVIColor(v *float64) Color {
	if v == nil {
		return NoDataColor
	}
	for _, class := range NDVIRamp {
		if *v < class.Upper {
			return class.Color
		}
	}
	return NDVIRamp[len(NDVIRamp)-1].Color
}

const (
	StatusPlanted    = "Planted"
	StatusTransition = "Transition"
	StatusBare       = "Bare/Fallow"

	PlantedThreshold    = 0.35
	TransitionThreshold = 0.15
)

// NDVIStatus classifies a field; an absent value yields "".
func NDVIStatus(v *float64) string {
	switch {
	case v == nil:
		return ""
	case *v > PlantedThreshold:
		return StatusPlanted
	case *v > TransitionThreshold:
		return StatusTransition
	}
	return StatusBare
}
