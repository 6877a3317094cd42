package script

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

// ErrLoadInput is returned when a script input file cannot be decoded.
var ErrLoadInput = errors.New("load script input failed")

// LoadInput decodes a script Input from a TOML file:
//
//	id    = "standup-42"
//	title = "Weekly standup"
//	goal  = "Agree on the release date"
func LoadInput(path string) (Input, error) {
	var in Input
	md, err := toml.DecodeFile(path, &in)
	if err != nil {
		return Input{}, fmt.Errorf("%w: %s: %w", ErrLoadInput, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Input{}, fmt.Errorf("%w: %s: unknown keys %v", ErrLoadInput, path, undecoded)
	}
	return in, nil
}
