// Package timemap maps time intervals to the places a device was carried to.
package timemap

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roman-kulish/lora-locator/internal/fingerprint"
)

// Layout is the time format shown to users. Parsing also accepts any RFC 3339 time.
const Layout = "2006-01-02T15:04:05.000000Z"

// ErrAborted is returned when the input ends before the finish command.
var ErrAborted = errors.New("input ended before finish command")

// Place is a named time interval, both ends inclusive.
type Place struct {
	Name  string
	Begin time.Time
	End   time.Time
}

// Label parses the place name as a fingerprint label.
func (p Place) Label() (fingerprint.Label, error) {
	return fingerprint.ParseLabel(p.Name)
}

func (p Place) String() string {
	return fmt.Sprintf("%s [%s, %s]", p.Name, p.Begin.Format(Layout), p.End.Format(Layout))
}

// ParseTime parses a UTC timestamp such as 2024-04-15T09:38:00.000000Z.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time '%s': %w", s, err)
	}
	return t.UTC(), nil
}

func isFinish(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), "f")
}

// ReadCSV reads "begin,end,place" lines until EOF or a line holding only
// "F". Any malformed line fails the whole read.
func ReadCSV(r io.Reader) ([]Place, error) {
	var places []Place

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if isFinish(text) {
			break
		}

		record, err := csv.NewReader(strings.NewReader(text)).Read()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) != 3 {
			return nil, fmt.Errorf("line %d: expected begin,end,place, got %d fields", line, len(record))
		}

		p, err := newPlace(record[2], record[0], record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		places = append(places, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	return places, nil
}

func newPlace(name, begin, end string) (Place, error) {
	p := Place{Name: strings.TrimSpace(name)}
	if p.Name == "" {
		return Place{}, errors.New("empty place name")
	}

	var err error
	if p.Begin, err = ParseTime(begin); err != nil {
		return Place{}, err
	}
	if p.End, err = ParseTime(end); err != nil {
		return Place{}, err
	}
	if p.End.Before(p.Begin) {
		return Place{}, fmt.Errorf("place '%s' ends before it begins", p.Name)
	}
	return p, nil
}
