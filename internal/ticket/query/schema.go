package query

import (
	"fmt"
	"strings"

	"github.com/railticket-query/pkg/ticket/models"
)

// MinRecordFields is the shortest raw record accepted as well formed.
const MinRecordFields = 30

type field string

const (
	fieldRemark    field = "remark"
	fieldTrainNo   field = "train_no"
	fieldTrainCode field = "train_code"
	fieldFromCode  field = "from_station_code"
	fieldToCode    field = "to_station_code"
	fieldDepart    field = "departure_time"
	fieldArrive    field = "arrival_time"
	fieldDuration  field = "duration"
)

// recordSchema maps positions in the pipe-separated upstream record to the
// values this package reads.
var recordSchema = map[int]field{
	1:  fieldRemark,
	2:  fieldTrainNo,
	3:  fieldTrainCode,
	6:  fieldFromCode,
	7:  fieldToCode,
	8:  fieldDepart,
	9:  fieldArrive,
	10: fieldDuration,
}

// seatSchema maps positions to seat classes. Some columns sit past
// MinRecordFields; a record that stops short of them reports NotSold.
var seatSchema = map[int]models.SeatClass{
	21: models.SeatHighSoftSleeper,
	22: models.SeatOther,
	23: models.SeatSoftSleeper,
	24: models.SeatSoftSeat,
	25: models.SeatPremium,
	26: models.SeatNoSeat,
	27: models.SeatDeluxeSleeper,
	28: models.SeatHardSleeper,
	29: models.SeatHardSeat,
	30: models.SeatSecond,
	31: models.SeatFirst,
	32: models.SeatBusiness,
}

func init() {
	for idx, name := range recordSchema {
		if idx >= MinRecordFields {
			panic(fmt.Sprintf("record field %s at %d is outside the guaranteed prefix", name, idx))
		}
	}
}

// NameResolver translates station codes to display names.
type NameResolver interface {
	Name(code string) (string, bool)
}

// ParseRecord decodes one raw record. Records shorter than MinRecordFields
// fail with models.ErrMalformedResponse.
func ParseRecord(raw string, names NameResolver) (models.TrainRecord, error) {
	parts := strings.Split(raw, "|")
	if len(parts) < MinRecordFields {
		return models.TrainRecord{}, fmt.Errorf("%w: record has %d fields, need %d",
			models.ErrMalformedResponse, len(parts), MinRecordFields)
	}

	values := make(map[field]string, len(recordSchema))
	for idx, name := range recordSchema {
		values[name] = strings.TrimSpace(parts[idx])
	}

	seats := make(map[models.SeatClass]string, len(seatSchema))
	for idx, class := range seatSchema {
		v := models.NotSold
		if idx < len(parts) {
			if s := strings.TrimSpace(parts[idx]); s != "" {
				v = s
			}
		}
		seats[class] = v
	}

	remark := values[fieldRemark]
	if remark == "" {
		remark = models.NotSold
	}

	fromCode, toCode := values[fieldFromCode], values[fieldToCode]
	return models.TrainRecord{
		TrainNo:   values[fieldTrainNo],
		TrainCode: values[fieldTrainCode],
		TrainType: models.ClassifyTrain(values[fieldTrainCode]),
		Remark:    remark,
		FromCode:  fromCode,
		ToCode:    toCode,
		FromStation: models.Stop{
			StationName:   displayName(names, fromCode),
			DepartureTime: values[fieldDepart],
		},
		ToStation: models.Stop{
			StationName: displayName(names, toCode),
			ArrivalTime: values[fieldArrive],
		},
		Duration: values[fieldDuration],
		Seats:    seats,
	}, nil
}

// ParseRecords decodes a result batch in upstream order, skipping malformed
// records. It returns the number skipped.
func ParseRecords(raw []string, names NameResolver) ([]models.TrainRecord, int) {
	records := make([]models.TrainRecord, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		rec, err := ParseRecord(r, names)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func displayName(names NameResolver, code string) string {
	if names == nil {
		return code
	}
	if name, ok := names.Name(code); ok {
		return name
	}
	return code
}
