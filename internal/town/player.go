package town

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Direction is the way a player is facing.
type Direction string

const (
	DirectionNorth Direction = "north"
	DirectionSouth Direction = "south"
	DirectionEast  Direction = "east"
	DirectionWest  Direction = "west"
)

// directionAliases maps the sprite-relative names some clients send onto compass directions.
var directionAliases = map[string]Direction{
	"back":  DirectionNorth,
	"front": DirectionSouth,
	"right": DirectionEast,
	"left":  DirectionWest,
}

// ParseDirection accepts a compass direction or one of the sprite-relative aliases.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(s))
	switch d {
	case DirectionNorth, DirectionSouth, DirectionEast, DirectionWest:
		return d, nil
	}
	if alias, ok := directionAliases[string(d)]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Location is a player's position and facing within a town.
type Location struct {
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Rotation Direction `json:"rotation"`
	Moving   bool      `json:"moving"`
}

// Player is a participant's live state. Once a player has been added to a
// Controller its location must only change through Controller.UpdatePlayerLocation.
type Player struct {
	ID       string   `json:"id"`
	UserName string   `json:"userName"`
	Location Location `json:"location"`
}

// NewPlayer creates a player with a fresh identity, facing south at the origin.
func NewPlayer(userName string) *Player {
	return &Player{
		ID:       uuid.NewString(),
		UserName: userName,
		Location: Location{Rotation: DirectionSouth},
	}
}
