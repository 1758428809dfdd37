package xterm

import "fmt"

type Color interface {
	S(text string) string
}

type ColorSet []Color

func (cs ColorSet) Choose(i int) Color {
	return cs[i%len(cs)]
}

// RankColors tell workers apart in the launcher output.
var RankColors = ColorSet{
	Green,
	Blue,
	Yellow,
	LightBlue,
}

type color uint8

var (
	Green     color = 32
	Yellow    color = 33
	Blue      color = 34
	Red       color = 35
	LightBlue color = 36

	Warn = Red
)

func (c color) S(text string) string {
	return fmt.Sprintf("\x1b[1;%dm%s\x1b[m", uint8(c), text)
}

var NoColor = noColor{}

type noColor struct{}

func (noColor) S(text string) string { return text }

// Pick returns cs, or a set of NoColor when enabled is false.
func (cs ColorSet) Pick(enabled bool) ColorSet {
	if enabled {
		return cs
	}
	return ColorSet{NoColor}
}
