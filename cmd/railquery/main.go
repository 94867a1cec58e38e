package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/railticket-query/internal/common/config"
	"github.com/railticket-query/internal/common/db"
	"github.com/railticket-query/internal/common/logger"
	"github.com/railticket-query/internal/store"
	"github.com/railticket-query/internal/ticket"
	"github.com/railticket-query/internal/ticket/itinerary"
	"github.com/railticket-query/pkg/ticket/models"
)

type options struct {
	from      string
	to        string
	date      string
	start     string
	end       string
	types     string
	via       string
	stops     bool
	purpose   string
	search    string
	fromIndex bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("railquery", flag.ContinueOnError)
	fs.StringVar(&o.from, "from", "", "departure station name")
	fs.StringVar(&o.to, "to", "", "arrival station name")
	fs.StringVar(&o.date, "date", "", "travel date YYYY-MM-DD (default tomorrow)")
	fs.StringVar(&o.start, "start", "", "earliest departure HH:MM")
	fs.StringVar(&o.end, "end", "", "latest departure HH:MM")
	fs.StringVar(&o.types, "types", "", "train type letters, comma separated (G,D,K...)")
	fs.StringVar(&o.via, "via", "", "only trains stopping at this station")
	fs.BoolVar(&o.stops, "stops", false, "include stop itineraries")
	fs.StringVar(&o.purpose, "purpose", "ADULT", "passenger type (ADULT or student)")
	fs.StringVar(&o.search, "search", "", "list stations matching a keyword and exit")
	fs.BoolVar(&o.fromIndex, "from-index", false, "re-fetch stops for the trains in the itinerary index")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.date == "" {
		o.date = time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	}
	if o.search == "" && !o.fromIndex && (o.from == "" || o.to == "") {
		return o, errors.New("-from and -to are required")
	}
	return o, nil
}

func splitTypes(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLogLevel(cfg.Logging.Level)
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.FilePath != ""
	if logCfg.File {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logCfg.AlertURL = cfg.Logging.DiscordURL
	log := logger.FromConfig(logCfg)

	code := run(cfg, log, opts)
	if !log.Flush(alertFlushTimeout) {
		fmt.Fprintln(os.Stderr, "some alerts were not delivered before exit")
	}
	os.Exit(code)
}

const alertFlushTimeout = 5 * time.Second

func run(cfg *config.Config, log logger.Logger, opts options) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine := ticket.NewFromConfig(cfg, log)

	if opts.search != "" {
		printStations(os.Stdout, engine.SearchStations(ctx, opts.search))
		return 0
	}

	if opts.fromIndex {
		res, err := engine.StopsFromIndex(ctx, cfg.Index.FilePath, opts.date)
		if err != nil {
			log.Error("Stop lookup failed", "error", err)
			return 1
		}
		printStops(os.Stdout, res.Trains)
		return 0
	}

	res, err := engine.Query(ctx, ticket.Request{
		FromStation:  opts.from,
		ToStation:    opts.to,
		Date:         opts.date,
		Purpose:      opts.purpose,
		StartTime:    opts.start,
		EndTime:      opts.end,
		TrainTypes:   splitTypes(opts.types),
		ViaStation:   opts.via,
		IncludeStops: opts.stops,
	})
	if err != nil {
		var invalid *models.InvalidStationError
		if errors.As(err, &invalid) {
			fmt.Fprintln(os.Stderr, invalid.Error())
			return 1
		}
		log.Error("Ticket query failed", "error", err)
		return 1
	}

	printTrains(os.Stdout, res.Trains)
	if opts.stops {
		printStops(os.Stdout, res.Trains)
	}

	if len(res.Trains) > 0 {
		if err := itinerary.Write(cfg.Index.FilePath, res.Trains); err != nil {
			log.Error("Failed to write itinerary index", "path", cfg.Index.FilePath, "error", err)
		}
	}

	if cfg.Database.Enabled {
		if err := saveRun(ctx, cfg, log, opts, res); err != nil {
			log.Error("Failed to store query results", "error", err)
		}
	}
	return 0
}

func saveRun(ctx context.Context, cfg *config.Config, log logger.Logger, opts options, res *ticket.Result) error {
	database, err := db.New(ctx, cfg.Database.ConnectionString(), log)
	if err != nil {
		return err
	}
	defer database.Close()

	records := store.NewRecordStore(database)
	if err := records.Migrate(ctx); err != nil {
		return err
	}
	runID, err := records.SaveRun(ctx, store.Run{
		FromStation: opts.from,
		ToStation:   opts.to,
		FromCode:    res.FromCode,
		ToCode:      res.ToCode,
		Date:        opts.date,
		ViaStation:  opts.via,
		Trains:      res.Trains,
	})
	if err != nil {
		return err
	}
	log.Info("Stored query run", "run_id", runID, "trains", len(res.Trains))

	if cfg.Database.Retention > 0 {
		pruned, err := records.PruneRuns(ctx, cfg.Database.Retention)
		if err != nil {
			return err
		}
		if pruned > 0 {
			log.Info("Pruned old query runs", "runs", pruned)
		}
	}
	return nil
}

func printStations(out io.Writer, stations []models.Station) {
	w := tabwriter.NewWriter(out, 5, 3, 3, ' ', 0)
	fmt.Fprintln(w, "# Station \t Code")
	for _, s := range stations {
		fmt.Fprintf(w, "%s \t %s\n", s.Name, s.Code)
	}
	w.Flush()
}

func printTrains(out io.Writer, trains []models.TrainRecord) {
	if len(trains) == 0 {
		fmt.Fprintln(out, "No trains found")
		return
	}
	w := tabwriter.NewWriter(out, 5, 3, 3, ' ', 0)
	fmt.Fprintln(w, "# Train \t From \t To \t Depart \t Arrive \t Duration \t Business \t First \t Second \t Hard sleeper \t Hard seat \t No seat")
	for i, t := range trains {
		fmt.Fprintf(w, "%d %s \t %s \t %s \t %s \t %s \t %s \t %s \t %s \t %s \t %s \t %s \t %s\n",
			i+1, t.TrainCode,
			t.FromStation.StationName, t.ToStation.StationName,
			t.FromStation.DepartureTime, t.ToStation.ArrivalTime, t.Duration,
			t.Seats[models.SeatBusiness], t.Seats[models.SeatFirst], t.Seats[models.SeatSecond],
			t.Seats[models.SeatHardSleeper], t.Seats[models.SeatHardSeat], t.Seats[models.SeatNoSeat])
	}
	w.Flush()
}

func printStops(out io.Writer, trains []models.TrainRecord) {
	for _, t := range trains {
		if len(t.Stops) == 0 {
			continue
		}
		names := make([]string, len(t.Stops))
		for i, s := range t.Stops {
			names[i] = s.StationName
		}
		fmt.Fprintf(out, "%s: %s\n", t.TrainCode, strings.Join(names, "-"))
	}
}
