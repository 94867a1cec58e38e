package models

import "strings"

// Sentinel marks a field that is structurally inapplicable, such as the
// arrival time at the first stop of an itinerary.
const Sentinel = "----"

// NotSold is the seat availability value for a class the train does not offer.
const NotSold = "--"

type Station struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Stop is one call of a train at a station.
type Stop struct {
	StationName      string `json:"station_name"`
	ArrivalTime      string `json:"arrival_time,omitempty"`
	DepartureTime    string `json:"departure_time,omitempty"`
	StopoverDuration string `json:"stopover_time,omitempty"`
}

type TrainType string

const (
	HighSpeed    TrainType = "high_speed"
	Bullet       TrainType = "bullet"
	Conventional TrainType = "conventional"
	OtherType    TrainType = "other"
)

// ClassifyTrain derives the train type from the first character of a public train code.
func ClassifyTrain(trainCode string) TrainType {
	if trainCode == "" {
		return OtherType
	}
	switch strings.ToUpper(trainCode[:1]) {
	case "G":
		return HighSpeed
	case "D":
		return Bullet
	case "Z", "T", "K":
		return Conventional
	default:
		return OtherType
	}
}

type SeatClass string

const (
	SeatBusiness        SeatClass = "business"
	SeatPremium         SeatClass = "premium"
	SeatFirst           SeatClass = "first"
	SeatSecond          SeatClass = "second"
	SeatHighSoftSleeper SeatClass = "high_soft_sleeper"
	SeatSoftSleeper     SeatClass = "soft_sleeper"
	SeatDeluxeSleeper   SeatClass = "deluxe_sleeper"
	SeatHardSleeper     SeatClass = "hard_sleeper"
	SeatSoftSeat        SeatClass = "soft_seat"
	SeatHardSeat        SeatClass = "hard_seat"
	SeatNoSeat          SeatClass = "no_seat"
	SeatOther           SeatClass = "other"
)

// SeatClasses lists every seat class in display order.
var SeatClasses = []SeatClass{
	SeatBusiness,
	SeatPremium,
	SeatFirst,
	SeatSecond,
	SeatHighSoftSleeper,
	SeatSoftSleeper,
	SeatDeluxeSleeper,
	SeatHardSleeper,
	SeatSoftSeat,
	SeatHardSeat,
	SeatNoSeat,
	SeatOther,
}

type TrainRecord struct {
	TrainNo     string    `json:"train_no"`
	TrainCode   string    `json:"train_code"`
	TrainType   TrainType `json:"train_type"`
	Remark      string    `json:"remark"`
	FromCode    string    `json:"from_code"`
	ToCode      string    `json:"to_code"`
	FromStation Stop      `json:"from_station"`
	ToStation   Stop      `json:"to_station"`
	Duration    string    `json:"duration"`

	// Seats maps a seat class to the upstream remaining-count string.
	// NotSold is kept as-is and never read as zero.
	Seats map[SeatClass]string `json:"seats"`

	// Prices is nil until a price lookup fills it; a missing class means unknown.
	Prices map[SeatClass]float64 `json:"prices,omitempty"`

	Stops []Stop `json:"stops,omitempty"`
}

// HasStop reports whether the enriched itinerary calls at the named station.
func (r TrainRecord) HasStop(stationName string) bool {
	for _, s := range r.Stops {
		if s.StationName == stationName {
			return true
		}
	}
	return false
}
