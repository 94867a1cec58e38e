package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/railticket-query/pkg/ticket/models"
)

type mapNames map[string]string

func (m mapNames) Name(code string) (string, bool) {
	n, ok := m[code]
	return n, ok
}

// rawRecord builds an upstream record with n fields and the given overrides.
func rawRecord(n int, overrides map[int]string) string {
	fields := make([]string, n)
	for i, v := range overrides {
		if i < n {
			fields[i] = v
		}
	}
	return strings.Join(fields, "|")
}

func sampleRecord(trainNo, code, depart string) string {
	return rawRecord(33, map[int]string{
		1:  "预订",
		2:  trainNo,
		3:  code,
		6:  "VNP",
		7:  "AOH",
		8:  depart,
		9:  "12:30",
		10: "04:30",
		26: "无",
		30: "有",
		31: "5",
		32: "0",
	})
}

func TestParseRecordFields(t *testing.T) {
	names := mapNames{"VNP": "北京南", "AOH": "上海虹桥"}
	rec, err := ParseRecord(sampleRecord("240000G1010C", "G101", "08:00"), names)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.TrainNo != "240000G1010C" || rec.TrainCode != "G101" {
		t.Errorf("unexpected identity: %+v", rec)
	}
	if rec.TrainType != models.HighSpeed {
		t.Errorf("expected high speed, got %s", rec.TrainType)
	}
	if rec.FromStation.StationName != "北京南" || rec.ToStation.StationName != "上海虹桥" {
		t.Errorf("expected translated names, got %q -> %q", rec.FromStation.StationName, rec.ToStation.StationName)
	}
	if rec.FromCode != "VNP" || rec.ToCode != "AOH" {
		t.Errorf("expected raw codes kept, got %q -> %q", rec.FromCode, rec.ToCode)
	}
	if rec.FromStation.DepartureTime != "08:00" || rec.ToStation.ArrivalTime != "12:30" {
		t.Errorf("unexpected times: %+v %+v", rec.FromStation, rec.ToStation)
	}
	if rec.Duration != "04:30" {
		t.Errorf("unexpected duration %q", rec.Duration)
	}

	wantSeats := map[models.SeatClass]string{
		models.SeatBusiness:    "0",
		models.SeatFirst:       "5",
		models.SeatSecond:      "有",
		models.SeatNoSeat:      "无",
		models.SeatHardSleeper: models.NotSold,
	}
	for class, want := range wantSeats {
		if got := rec.Seats[class]; got != want {
			t.Errorf("seat %s = %q, want %q", class, got, want)
		}
	}
	if len(rec.Seats) != len(models.SeatClasses) {
		t.Errorf("expected every seat class, got %d", len(rec.Seats))
	}
	if rec.Prices != nil {
		t.Error("prices must stay unknown")
	}
}

func TestParseRecordUnknownCodePassesThrough(t *testing.T) {
	rec, err := ParseRecord(sampleRecord("1", "K1", "09:00"), mapNames{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.FromStation.StationName != "VNP" {
		t.Errorf("expected raw code, got %q", rec.FromStation.StationName)
	}
}

func TestParseRecordShortSeatColumns(t *testing.T) {
	rec, err := ParseRecord(rawRecord(30, map[int]string{3: "D5", 29: "12"}), nil)
	if err != nil {
		t.Fatalf("a 30 field record must parse: %v", err)
	}
	if rec.Seats[models.SeatHardSeat] != "12" {
		t.Errorf("expected hard seat 12, got %q", rec.Seats[models.SeatHardSeat])
	}
	if rec.Seats[models.SeatBusiness] != models.NotSold {
		t.Errorf("expected missing column to be not sold, got %q", rec.Seats[models.SeatBusiness])
	}
	if rec.Remark != models.NotSold {
		t.Errorf("expected empty remark to be %q, got %q", models.NotSold, rec.Remark)
	}
}

func TestParseRecordTooShort(t *testing.T) {
	_, err := ParseRecord(rawRecord(29, map[int]string{3: "G1"}), nil)
	if !errors.Is(err, models.ErrMalformedResponse) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestParseRecordTrainTypeFromFirstCharacter(t *testing.T) {
	tests := map[string]models.TrainType{
		"G1":    models.HighSpeed,
		"g7":    models.HighSpeed,
		"D312":  models.Bullet,
		"Z19":   models.Conventional,
		"T109":  models.Conventional,
		"K511":  models.Conventional,
		"C2001": models.OtherType,
		"1461":  models.OtherType,
		"":      models.OtherType,
	}
	for code, want := range tests {
		rec, err := ParseRecord(rawRecord(30, map[int]string{3: code}), nil)
		if err != nil {
			t.Fatalf("ParseRecord(%q): %v", code, err)
		}
		if rec.TrainType != want {
			t.Errorf("train %q: got %s, want %s", code, rec.TrainType, want)
		}
	}
}

func TestParseRecordsSkipsMalformed(t *testing.T) {
	raw := []string{
		sampleRecord("1", "G1", "07:00"),
		"broken|record",
		sampleRecord("2", "D2", "08:00"),
	}
	records, skipped := ParseRecords(raw, nil)
	if skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", skipped)
	}
	if len(records) != 2 || records[0].TrainCode != "G1" || records[1].TrainCode != "D2" {
		t.Errorf("expected upstream order preserved, got %+v", records)
	}
}

func TestPurposeCode(t *testing.T) {
	if got := PurposeCode("学生票"); got != PurposeStudent {
		t.Errorf("expected student code, got %q", got)
	}
	if got := PurposeCode("student"); got != PurposeStudent {
		t.Errorf("expected student code, got %q", got)
	}
	if got := PurposeCode(""); got != PurposeAdult {
		t.Errorf("expected adult code, got %q", got)
	}
}
