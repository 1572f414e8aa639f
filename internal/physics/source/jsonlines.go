package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/banshee-data/combfit/internal/physics/event"
)

// maxLineBytes bounds a single JSON-lines record.
const maxLineBytes = 1 << 20

var recordValidate = validator.New()

type candidateRecord struct {
	Ek          float64 `validate:"gte=0"`
	Theta       float64 `validate:"gte=0,lte=3.1415927"`
	Phi         float64 `validate:"gte=-6.2831854,lte=6.2831854"`
	Detector    string  `validate:"oneof=CB TAPS"`
	Time        float64
	VetoEnergy  float64 `validate:"gte=0"`
	ClusterSize int     `validate:"gte=0"`
}

type hitRecord struct {
	Channel int     `validate:"gte=0"`
	Energy  float64 `validate:"gt=0"`
	Time    float64
}

type eventRecord struct {
	ID          int64 `validate:"gte=0"`
	TriggerTime float64
	Candidates  []candidateRecord `validate:"dive"`
	TaggerHits  []hitRecord       `validate:"dive"`
}

// JSONLines reads one event per line:
//
//	{"id":1,"trigger_time":0,
//	 "candidates":[{"ek":120.5,"theta":0.8,"phi":-2.1,"detector":"CB","time":1.2,"veto_energy":0,"cluster_size":5}],
//	 "tagger_hits":[{"channel":17,"energy":1400,"time":0.5}]}
//
// Blank lines and lines starting with '#' are skipped. Events without an
// "id" are numbered by line.
type JSONLines struct {
	sc   *bufio.Scanner
	line int
}

// NewJSONLines returns a Source reading from r.
func NewJSONLines(r io.Reader) *JSONLines {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &JSONLines{sc: sc}
}

// Line is the number of the last line read.
func (j *JSONLines) Line() int { return j.line }

// Next implements Source. Malformed lines return an error wrapping
// ErrMalformedEvent with the line number.
func (j *JSONLines) Next(ctx context.Context) (*event.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.sc.Scan() {
			if err := j.sc.Err(); err != nil {
				return nil, fmt.Errorf("read line %d: %w", j.line+1, err)
			}
			return nil, io.EOF
		}
		j.line++
		text := strings.TrimSpace(j.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := ParseEvent(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", j.line, err)
		}
		if ev.ID == 0 && !gjson.Get(text, "id").Exists() {
			ev.ID = int64(j.line)
		}
		return ev, nil
	}
}

// ParseEvent decodes and validates a single JSON event record.
func ParseEvent(text string) (*event.Event, error) {
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedEvent)
	}
	root := gjson.Parse(text)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: record is not an object", ErrMalformedEvent)
	}

	rec := eventRecord{
		ID:          root.Get("id").Int(),
		TriggerTime: root.Get("trigger_time").Float(),
	}
	root.Get("candidates").ForEach(func(_, c gjson.Result) bool {
		rec.Candidates = append(rec.Candidates, candidateRecord{
			Ek:          c.Get("ek").Float(),
			Theta:       c.Get("theta").Float(),
			Phi:         c.Get("phi").Float(),
			Detector:    strings.ToUpper(c.Get("detector").String()),
			Time:        c.Get("time").Float(),
			VetoEnergy:  c.Get("veto_energy").Float(),
			ClusterSize: int(c.Get("cluster_size").Int()),
		})
		return true
	})
	root.Get("tagger_hits").ForEach(func(_, h gjson.Result) bool {
		rec.TaggerHits = append(rec.TaggerHits, hitRecord{
			Channel: int(h.Get("channel").Int()),
			Energy:  h.Get("energy").Float(),
			Time:    h.Get("time").Float(),
		})
		return true
	})

	if err := recordValidate.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return rec.event()
}

func (r eventRecord) event() (*event.Event, error) {
	ev := &event.Event{
		ID:          r.ID,
		TriggerTime: r.TriggerTime,
		Candidates:  make([]*event.Candidate, 0, len(r.Candidates)),
		TaggerHits:  make([]event.TaggerHit, 0, len(r.TaggerHits)),
	}
	for _, c := range r.Candidates {
		det, err := event.ParseDetector(c.Detector)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Candidates = append(ev.Candidates, &event.Candidate{
			Ek:          c.Ek,
			Theta:       c.Theta,
			Phi:         c.Phi,
			Detector:    det,
			Time:        c.Time,
			VetoEnergy:  c.VetoEnergy,
			ClusterSize: c.ClusterSize,
		})
	}
	for _, h := range r.TaggerHits {
		ev.TaggerHits = append(ev.TaggerHits, event.TaggerHit{Channel: h.Channel, PhotonEnergy: h.Energy, Time: h.Time})
	}
	return ev, nil
}
