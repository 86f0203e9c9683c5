package logic

// Color is a 10-bit RGB duty triple.
type Color struct {
	R, G, B uint16
}

// NoColor is the LED-off state.
var NoColor = Color{}

// IsOff reports whether the color is the LED-off state.
func (c Color) IsOff() bool {
	return c == NoColor
}

// Palette maps air quality tiers to LED colors, ordered from Good to Very Poor.
// The same table is used by Decide and by manual LED commands.
var Palette = [MaxAirLevel + 1]Color{
	{R: 0, G: 1023, B: 0},    // Good: green
	{R: 1023, G: 1023, B: 0}, // Fair: yellow
	{R: 1023, G: 662, B: 0},  // Moderate: orange
	{R: 1023, G: 0, B: 0},    // Poor: red
	{R: 1023, G: 0, B: 1023}, // Very Poor: purple
}

// PaletteNames are the display names of the palette entries.
var PaletteNames = [MaxAirLevel + 1]string{"Good", "Fair", "Moderate", "Poor", "Very Poor"}

// ColorForLevel clamps level into the palette and returns its color and index.
func ColorForLevel(level uint32) (Color, uint8) {
	if level > uint32(MaxAirLevel) {
		level = uint32(MaxAirLevel)
	}
	return Palette[level], uint8(level)
}

// PaletteIndex returns the palette index of c, or -1 if c is not a palette color.
func PaletteIndex(c Color) int {
	for i, p := range Palette {
		if p == c {
			return i
		}
	}
	return -1
}
