package action

import (
	"math"
	"strings"
)

// Direction is a horizontal unit vector on the x/z plane together with the
// yaw that faces it.
type Direction struct {
	Name string
	DX   float64
	DZ   float64
	Yaw  float64
}

// Yaw follows the game convention: 0 faces south (+z), 90 west, 180 north,
// 270 east.
var cardinals = map[string]Direction{
	"north": {Name: "north", DX: 0, DZ: -1, Yaw: 180},
	"south": {Name: "south", DX: 0, DZ: 1, Yaw: 0},
	"east":  {Name: "east", DX: 1, DZ: 0, Yaw: 270},
	"west":  {Name: "west", DX: -1, DZ: 0, Yaw: 90},
}

// Cardinal returns the four cardinal directions in a fixed order.
func Cardinal() []Direction {
	return []Direction{cardinals["north"], cardinals["east"], cardinals["south"], cardinals["west"]}
}

// ParseDirection resolves a direction word. Relative words ("forward",
// "back", "left", "right") are resolved against the given yaw.
func ParseDirection(word string, yaw float64) (Direction, bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	switch w {
	case "n":
		w = "north"
	case "s":
		w = "south"
	case "e":
		w = "east"
	case "w":
		w = "west"
	}
	if d, ok := cardinals[w]; ok {
		return d, true
	}

	switch w {
	case "forward", "ahead", "f":
		return FromYaw("forward", yaw), true
	case "back", "backward", "backwards", "b":
		return FromYaw("back", yaw+180), true
	case "left":
		return FromYaw("left", yaw-90), true
	case "right":
		return FromYaw("right", yaw+90), true
	}
	return Direction{}, false
}

// FromYaw builds a direction facing the given yaw in degrees.
func FromYaw(name string, yaw float64) Direction {
	yaw = math.Mod(yaw, 360)
	if yaw < 0 {
		yaw += 360
	}
	rad := yaw * math.Pi / 180
	return Direction{
		Name: name,
		DX:   round(-math.Sin(rad)),
		DZ:   round(math.Cos(rad)),
		Yaw:  yaw,
	}
}

// round trims floating noise so cardinal yaws produce exact unit vectors.
func round(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}
