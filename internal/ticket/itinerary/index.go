// Package itinerary persists the trains of a query so their stop lists can be
// looked up again without repeating the schedule query.
package itinerary

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/railticket-query/pkg/ticket/models"
)

const (
	fieldSep   = "\t"
	fieldCount = 8
	headerLine = "# railquery itinerary index v1"
)

// Entry is one indexed train leg.
type Entry struct {
	TrainNo       string
	TrainCode     string
	FromCode      string
	ToCode        string
	FromName      string
	ToName        string
	DepartureTime string
	ArrivalTime   string
}

func EntryFor(r models.TrainRecord) Entry {
	return Entry{
		TrainNo:       r.TrainNo,
		TrainCode:     r.TrainCode,
		FromCode:      r.FromCode,
		ToCode:        r.ToCode,
		FromName:      r.FromStation.StationName,
		ToName:        r.ToStation.StationName,
		DepartureTime: r.FromStation.DepartureTime,
		ArrivalTime:   r.ToStation.ArrivalTime,
	}
}

// Record rebuilds the minimal train record needed for a stop lookup.
func (e Entry) Record() models.TrainRecord {
	return models.TrainRecord{
		TrainNo:     e.TrainNo,
		TrainCode:   e.TrainCode,
		TrainType:   models.ClassifyTrain(e.TrainCode),
		FromCode:    e.FromCode,
		ToCode:      e.ToCode,
		FromStation: models.Stop{StationName: e.FromName, DepartureTime: e.DepartureTime},
		ToStation:   models.Stop{StationName: e.ToName, ArrivalTime: e.ArrivalTime},
	}
}

func (e Entry) line() string {
	return strings.Join([]string{
		clean(e.TrainNo), clean(e.TrainCode), clean(e.FromCode), clean(e.ToCode),
		clean(e.FromName), clean(e.ToName), clean(e.DepartureTime), clean(e.ArrivalTime),
	}, fieldSep) + "\n"
}

func clean(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}

// Write replaces the index at path with records. The file is written to a
// temporary sibling and renamed into place.
func Write(path string, records []models.TrainRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "itinerary_*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	if _, err := io.WriteString(w, headerLine+"\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("writing index: %w", err)
	}
	for _, r := range records {
		if r.TrainNo == "" || r.TrainCode == "" {
			continue
		}
		if _, err := io.WriteString(w, EntryFor(r).line()); err != nil {
			tmp.Close()
			return fmt.Errorf("writing index: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("moving index into place: %w", err)
	}
	return nil
}

// Read returns the complete entries of the index at path. A missing,
// unreadable or truncated file yields whatever complete lines it holds,
// possibly none.
func Read(path string) []Entry {
	f, err := os.Open(path)
	if err != nil {
		return []Entry{}
	}
	defer f.Close()

	entries := []Entry{}
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			// a final line without its newline was cut off mid-write
			return entries
		}
		if e, ok := parseLine(strings.TrimRight(line, "\r\n")); ok {
			entries = append(entries, e)
		}
	}
}

func parseLine(line string) (Entry, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, false
	}
	f := strings.Split(line, fieldSep)
	if len(f) != fieldCount || f[0] == "" || f[1] == "" {
		return Entry{}, false
	}
	return Entry{
		TrainNo:       f[0],
		TrainCode:     f[1],
		FromCode:      f[2],
		ToCode:        f[3],
		FromName:      f[4],
		ToName:        f[5],
		DepartureTime: f[6],
		ArrivalTime:   f[7],
	}, true
}
