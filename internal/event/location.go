package event

import (
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Location is a position and view direction in the game world. Pitch is the
// up/down view angle in degrees (-90..90); Yaw is the left/right view angle
// in degrees (0..360).
type Location struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

const locationDimensions = 5

// ParseLocationString parses a "[x,y,z,pitch,yaw]" location key into a
// Location. Task documents key world objects by such strings. Missing
// dimensions are zero-filled and extra ones dropped with a warning.
func ParseLocationString(value string) (Location, error) {
	trimmed := strings.NewReplacer("[", "", "]", "", " ", "").Replace(value)
	parts := strings.Split(trimmed, ",")

	if len(parts) != locationDimensions {
		log.Printf("event: location string %q does not have exactly %d dimensions; "+
			"missing coordinates default to 0 and extras are ignored", value, locationDimensions)
		if len(parts) > locationDimensions {
			parts = parts[:locationDimensions]
		}
		for len(parts) < locationDimensions {
			parts = append(parts, "0")
		}
	}

	coords := make([]float64, locationDimensions)
	for i, part := range parts {
		if part == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return Location{}, fmt.Errorf("parse location coordinate %q: %w", part, err)
		}
		coords[i] = parsed
	}

	return Location{X: coords[0], Y: coords[1], Z: coords[2], Pitch: coords[3], Yaw: coords[4]}, nil
}
