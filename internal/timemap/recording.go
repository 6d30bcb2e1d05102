package timemap

import (
	"fmt"
	"io"
	"os"

	"github.com/roman-kulish/lora-locator/internal/ttn"
)

// Load reads places from the CSV file at path. When path is empty the
// places are collected interactively from in.
func Load(path string, in io.Reader, out io.Writer) ([]Place, error) {
	if path == "" {
		return NewPrompter(in, out).Select()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening time map: %w", err)
	}
	defer f.Close()

	places, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading time map '%s': %w", path, err)
	}
	return places, nil
}

// Recording is the part of an uplink history received during one place visit.
type Recording struct {
	Place   Place
	Uplinks []ttn.Uplink
}

// Split cuts uplinks into one recording per place, in place order. An uplink
// may belong to several recordings when the places overlap.
func Split(places []Place, uplinks []ttn.Uplink) []Recording {
	recordings := make([]Recording, 0, len(places))
	for _, p := range places {
		recordings = append(recordings, Recording{
			Place:   p,
			Uplinks: ttn.FilterRange(uplinks, p.Begin, p.End),
		})
	}
	return recordings
}
