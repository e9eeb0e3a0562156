package sds

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mercator-hq/callisto/pkg/quality"
)

// Day is the length of one SDS file's data window.
const Day = 24 * time.Hour

// File identifies one daily SDS file. It is a value type; all derived
// identities (neighbours, siblings) are new values.
type File struct {
	// Network is the FDSN network code.
	Network string

	// Station is the station code.
	Station string

	// Location is the location code. It may be empty.
	Location string

	// Channel is the channel code.
	Channel string

	// Quality is the file's lifecycle tag.
	Quality quality.Quality

	// Year is the four digit data year.
	Year int

	// Day is the day of year, 1-based.
	Day int
}

// Parse parses a filename of the form NET.STA.LOC.CHA.Q.YEAR.DOY.
// A leading directory is ignored.
func Parse(name string) (File, error) {
	base := path.Base(filepath.ToSlash(name))
	parts := strings.Split(base, ".")
	if len(parts) != 7 {
		return File{}, &ParseError{Name: name, Reason: fmt.Sprintf("expected 7 fields, got %d", len(parts))}
	}

	if parts[0] == "" || parts[1] == "" || parts[3] == "" {
		return File{}, &ParseError{Name: name, Reason: "network, station and channel are required"}
	}

	q := quality.Quality(parts[4])
	if !q.IsFileTag() {
		return File{}, &ParseError{Name: name, Reason: fmt.Sprintf("unknown quality %q", parts[4])}
	}

	if len(parts[5]) != 4 {
		return File{}, &ParseError{Name: name, Reason: fmt.Sprintf("invalid year %q", parts[5])}
	}
	year, err := strconv.Atoi(parts[5])
	if err != nil {
		return File{}, &ParseError{Name: name, Reason: fmt.Sprintf("invalid year %q", parts[5])}
	}

	if len(parts[6]) != 3 {
		return File{}, &ParseError{Name: name, Reason: fmt.Sprintf("invalid day %q", parts[6])}
	}
	day, err := strconv.Atoi(parts[6])
	if err != nil || day < 1 || day > daysIn(year) {
		return File{}, &ParseError{Name: name, Reason: fmt.Sprintf("invalid day %q", parts[6])}
	}

	return File{
		Network:  parts[0],
		Station:  parts[1],
		Location: parts[2],
		Channel:  parts[3],
		Quality:  q,
		Year:     year,
		Day:      day,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for tests.
func MustParse(name string) File {
	f, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseError reports a malformed SDS filename.
type ParseError struct {
	Name   string
	Reason string
}

// Error returns the error message.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid SDS filename %q: %s", e.Name, e.Reason)
}

// Filename returns the canonical file name.
func (f File) Filename() string {
	return fmt.Sprintf("%s.%s.%s.%s.%s.%04d.%03d",
		f.Network, f.Station, f.Location, f.Channel, f.Quality, f.Year, f.Day)
}

// String returns the file name.
func (f File) String() string {
	return f.Filename()
}

// StreamID returns NET.STA.LOC.CHA.
func (f File) StreamID() string {
	return strings.Join([]string{f.Network, f.Station, f.Location, f.Channel}, ".")
}

// WindowKey identifies the stream day independent of quality. Files that
// share a window key are siblings.
func (f File) WindowKey() string {
	return fmt.Sprintf("%s.%04d.%03d", f.StreamID(), f.Year, f.Day)
}

// Start returns the start of the data window.
func (f File) Start() time.Time {
	return time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, f.Day-1)
}

// End returns the exclusive end of the data window.
func (f File) End() time.Time {
	return f.Start().Add(Day)
}

// SampleStart formats the window start the way the miniSEED tools expect.
func (f File) SampleStart() string {
	return f.Start().Format("2006,002,15,04,05.000000")
}

// SampleEnd formats the last instant of the window.
func (f File) SampleEnd() string {
	return f.Start().Format("2006,002") + ",23,59,59.999999"
}

// Previous returns the file for the preceding day with the same quality.
func (f File) Previous() File {
	return f.shift(-1)
}

// Next returns the file for the following day with the same quality.
func (f File) Next() File {
	return f.shift(1)
}

func (f File) shift(days int) File {
	t := f.Start().AddDate(0, 0, days)
	out := f
	out.Year = t.Year()
	out.Day = t.YearDay()
	return out
}

// WithQuality returns the sibling of f with quality q.
func (f File) WithQuality(q quality.Quality) File {
	out := f
	out.Quality = q
	return out
}

// Directory returns YEAR/NET/STA/CHA.Q, relative to an archive root.
func (f File) Directory() string {
	return path.Join(fmt.Sprintf("%04d", f.Year), f.Network, f.Station, f.Channel+"."+string(f.Quality))
}

// RelPath returns the slash separated path relative to an archive root.
func (f File) RelPath() string {
	return path.Join(f.Directory(), f.Filename())
}

// Path returns the file path under root.
func (f File) Path(root string) string {
	return filepath.Join(root, filepath.FromSlash(f.RelPath()))
}

// ObjectKey returns the object store key for the file.
func (f File) ObjectKey() string {
	return f.RelPath()
}

// Less orders files by stream, then time, then quality.
func Less(a, b File) bool {
	if a.StreamID() != b.StreamID() {
		return a.StreamID() < b.StreamID()
	}
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	if a.Day != b.Day {
		return a.Day < b.Day
	}
	return a.Quality.Rank() < b.Quality.Rank()
}

func daysIn(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
