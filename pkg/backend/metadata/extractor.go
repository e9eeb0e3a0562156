package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/backend"
	"mercator-hq/callisto/pkg/inventory"
)

// DefaultPublisher is used when Config.Publisher is empty.
const DefaultPublisher = "ORFEUS Data Center"

// ErrNoPID is returned when a Dublin Core document is requested without a
// persistent identifier.
var ErrNoPID = errors.New("dublin core document requires a pid")

// Config configures the extractor.
type Config struct {
	// Publisher is written into dc_publisher.
	Publisher string

	// Clock stamps the documents. Defaults to the real clock.
	Clock clockwork.Clock
}

// Extractor implements backend.MetadataExtractor from archive entries. The
// documents describe file identity, data window, size and checksum. Sample
// level statistics are not computed.
type Extractor struct {
	publisher string
	clock     clockwork.Clock
}

var _ backend.MetadataExtractor = (*Extractor)(nil)

// New creates an Extractor.
func New(cfg Config) *Extractor {
	if cfg.Publisher == "" {
		cfg.Publisher = DefaultPublisher
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Extractor{publisher: cfg.Publisher, clock: cfg.Clock}
}

// Waveform builds the daily waveform catalog document.
func (e *Extractor) Waveform(ctx context.Context, entry inventory.Entry, checksum string) (backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return backend.Document{}, err
	}
	f := entry.File
	return backend.Document{
		Kind:     backend.KindWaveform,
		FileID:   f.Filename(),
		Checksum: checksum,
		Body: map[string]any{
			"fileId":     f.Filename(),
			"net":        f.Network,
			"sta":        f.Station,
			"loc":        f.Location,
			"cha":        f.Channel,
			"qlt":        string(f.Quality),
			"start_time": f.Start().Format(time.RFC3339),
			"end_time":   f.End().Format(time.RFC3339),
			"size":       entry.Size,
			"modified":   entry.ModTime.UTC().Format(time.RFC3339),
			"checksum":   checksum,
		},
		Updated: e.clock.Now().UTC(),
	}, nil
}

// DublinCore builds the Dublin Core document. pid is required.
func (e *Extractor) DublinCore(ctx context.Context, entry inventory.Entry, checksum, pid string) (backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return backend.Document{}, err
	}
	if pid == "" {
		return backend.Document{}, ErrNoPID
	}
	f := entry.File
	return backend.Document{
		Kind:     backend.KindDublinCore,
		FileID:   f.Filename(),
		Checksum: checksum,
		PID:      pid,
		Body: map[string]any{
			"fileId":        f.Filename(),
			"dc_identifier": pid,
			"dc_title":      f.StreamID(),
			"dc_subject":    []string{"mseed", "waveform", "seismology"},
			"dc_creator":    f.Network,
			"dc_publisher":  e.publisher,
			"dc_format":     "mseed",
			"dc_type":       "seismic waveform",
			"dc_date":       f.Start().Format("2006-01-02"),
			"dc_coverage":   map[string]string{"start": f.Start().Format(time.RFC3339), "end": f.End().Format(time.RFC3339)},
			"size":          entry.Size,
			"checksum":      checksum,
		},
		Updated: e.clock.Now().UTC(),
	}, nil
}
