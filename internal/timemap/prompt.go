package timemap

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// Prompter collects places interactively.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
	now func() time.Time
}

// WithClock sets the clock used by Current
func WithClock(now func() time.Time) func(p *Prompter) {
	return func(p *Prompter) {
		p.now = now
	}
}

// NewPrompter creates a prompter reading commands from in and writing prompts to out.
func NewPrompter(in io.Reader, out io.Writer, options ...func(p *Prompter)) *Prompter {
	p := Prompter{
		in:  bufio.NewScanner(in),
		out: out,
		now: time.Now,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

func (p *Prompter) ask(prompt string) (string, bool) {
	if prompt != "" {
		fmt.Fprint(p.out, prompt)
	}
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

// Select asks which entry method to use: manual, current time, CSV, or finish.
func (p *Prompter) Select() ([]Place, error) {
	fmt.Fprintln(p.out, "Time-place mapping tool")
	fmt.Fprintln(p.out, "Type 'M' to use the manual time tool")
	fmt.Fprintln(p.out, "Type 'C' to use the current time tool")
	fmt.Fprintln(p.out, "Type 'V' to use the CSV time tool")
	fmt.Fprintln(p.out, "Type 'F' to finish")

	for {
		cmd, ok := p.ask("Command: ")
		if !ok {
			return nil, ErrAborted
		}
		switch strings.ToLower(cmd) {
		case "m":
			return p.Manual()
		case "c":
			return p.Current()
		case "v":
			fmt.Fprintln(p.out, "Paste begin,end,place lines, then 'F'")
			return p.CSV()
		case "f":
			return nil, nil
		default:
			fmt.Fprintln(p.out, "Unknown command")
		}
	}
}

// Manual reads begin and end times typed by the user. Invalid times are
// reported and may be entered again.
func (p *Prompter) Manual() ([]Place, error) {
	return p.collect(func(which string) (time.Time, bool, error) {
		s, ok := p.ask(fmt.Sprintf("Enter %s time '%s': ", which, Layout))
		if !ok {
			return time.Time{}, false, ErrAborted
		}
		t, err := ParseTime(s)
		if err != nil {
			fmt.Fprintln(p.out, "Invalid time format. Please try again")
			return time.Time{}, false, nil
		}
		return t, true, nil
	})
}

// Current marks begin and end with the current time.
func (p *Prompter) Current() ([]Place, error) {
	return p.collect(func(string) (time.Time, bool, error) {
		return p.now().UTC(), true, nil
	})
}

// CSV reads the remaining input as CSV lines.
func (p *Prompter) CSV() ([]Place, error) {
	var sb strings.Builder
	for p.in.Scan() {
		line := p.in.Text()
		if isFinish(line) {
			break
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return ReadCSV(strings.NewReader(sb.String()))
}

func (p *Prompter) collect(take func(which string) (time.Time, bool, error)) ([]Place, error) {
	var places []Place
	var begin *time.Time

	fmt.Fprintln(p.out, "Type 'B' to take the begin time, 'E' to take the end time, 'F' to finish")
	for {
		cmd, ok := p.ask("Command: ")
		if !ok {
			return nil, ErrAborted
		}

		switch strings.ToLower(cmd) {
		case "b":
			t, ok, err := take("begin")
			if err != nil {
				return nil, err
			}
			if ok {
				begin = &t
				fmt.Fprintf(p.out, "Begin time recorded: %s\n", t.Format(Layout))
			}

		case "e":
			if begin == nil {
				fmt.Fprintln(p.out, "Error, begin must be first")
				continue
			}
			end, ok, err := take("end")
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if end.Before(*begin) {
				fmt.Fprintln(p.out, "Error, end is before begin")
				continue
			}
			fmt.Fprintf(p.out, "End time recorded: %s\n", end.Format(Layout))

			name, ok := p.ask("Enter place name: ")
			if !ok {
				return nil, ErrAborted
			}
			places = append(places, Place{Name: name, Begin: *begin, End: end})
			begin = nil

		case "f":
			return places, nil

		default:
			fmt.Fprintln(p.out, "Unknown command")
		}
	}
}
