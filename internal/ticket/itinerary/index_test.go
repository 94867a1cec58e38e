package itinerary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/railticket-query/pkg/ticket/models"
)

func sampleRecords() []models.TrainRecord {
	return []models.TrainRecord{
		{
			TrainNo:     "240000G1010C",
			TrainCode:   "G101",
			FromCode:    "VNP",
			ToCode:      "AOH",
			FromStation: models.Stop{StationName: "北京南", DepartureTime: "06:36"},
			ToStation:   models.Stop{StationName: "上海虹桥", ArrivalTime: "12:40"},
		},
		{
			TrainNo:     "24000000Z90E",
			TrainCode:   "Z9",
			FromCode:    "BJP",
			ToCode:      "SHH",
			FromStation: models.Stop{StationName: "北京", DepartureTime: "19:00"},
			ToStation:   models.Stop{StationName: "上海", ArrivalTime: "07:00"},
		},
		{TrainCode: "NOID"},
	}
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stops.idx")
	if err := Write(path, sampleRecords()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries := Read(path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0] != EntryFor(sampleRecords()[0]) {
		t.Errorf("unexpected entry: %+v", entries[0])
	}

	rec := entries[1].Record()
	if rec.TrainType != models.Conventional || rec.FromStation.DepartureTime != "19:00" {
		t.Errorf("unexpected rebuilt record: %+v", rec)
	}
}

func TestReadMissingFile(t *testing.T) {
	entries := Read(filepath.Join(t.TempDir(), "absent.idx"))
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected an empty non-nil slice, got %#v", entries)
	}
}

func TestReadPartiallyWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.idx")
	content := headerLine + "\n" +
		"1\tG1\tVNP\tAOH\t北京南\t上海虹桥\t06:36\t12:40\n" +
		"broken\tline\n" +
		"2\tG3\tVNP\tAOH\t北京南\t上海" // no newline: truncated mid-write
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	entries := Read(path)
	if len(entries) != 1 || entries[0].TrainCode != "G1" {
		t.Errorf("expected only the complete entry, got %+v", entries)
	}
}

func TestWriteReplacesExistingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.idx")
	if err := Write(path, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, sampleRecords()[:1]); err != nil {
		t.Fatal(err)
	}
	if got := len(Read(path)); got != 1 {
		t.Errorf("expected 1 entry after rewrite, got %d", got)
	}
}

func TestCleanStripsSeparators(t *testing.T) {
	rec := sampleRecords()[0]
	rec.FromStation.StationName = "北京\t南"
	path := filepath.Join(t.TempDir(), "stops.idx")
	if err := Write(path, []models.TrainRecord{rec}); err != nil {
		t.Fatal(err)
	}
	entries := Read(path)
	if len(entries) != 1 || entries[0].FromName != "北京 南" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}
