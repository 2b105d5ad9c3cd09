package led

import "math"

// RGB is an 8-bit per channel color.
type RGB struct {
	R, G, B uint8
}

// Scale returns c dimmed to percent.
func (c RGB) Scale(percent uint8) RGB {
	if percent >= MaxPercent {
		return c
	}
	f := func(v uint8) uint8 { return uint8(uint32(v) * uint32(percent) / MaxPercent) }
	return RGB{f(c.R), f(c.G), f(c.B)}
}

// HSVToRGB converts hue in degrees and saturation and value in percent.
func HSVToRGB(hue uint16, sat, val uint8) RGB {
	h := float64(hue%MaxHue) / 60
	s := float64(min(sat, MaxPercent)) / MaxPercent
	v := float64(min(val, MaxPercent)) / MaxPercent

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h, 2)-1))
	m := v - c
	var r, g, b float64
	switch int(h) {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return RGB{to8(r + m), to8(g + m), to8(b + m)}
}

// KelvinToRGB approximates the color of a black body at kelvin using the
// Tanner Helland fit.
func KelvinToRGB(kelvin uint32) RGB {
	t := float64(min(max(kelvin, MinTemperature), MaxTemperature)) / 100
	var r, g, b float64
	if t <= 66 {
		r = 255
		g = 99.4708025861*math.Log(t) - 161.1195681661
	} else {
		r = 329.698727446 * math.Pow(t-60, -0.1332047592)
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
	}
	switch {
	case t >= 66:
		b = 255
	case t <= 19:
		b = 0
	default:
		b = 138.5177312231*math.Log(t-10) - 305.0447927307
	}
	return RGB{clamp(r), clamp(g), clamp(b)}
}

func to8(f float64) uint8 { return clamp(math.Round(f * 255)) }

func clamp(f float64) uint8 {
	switch {
	case f < 0:
		return 0
	case f > 255:
		return 255
	}
	return uint8(f)
}
