// Command genmock generates deterministic synthetic pipeline fixtures: a
// site-year roster and a matching unified daily dataset with
// seasonal-shaped weather values from a seeded RNG. The dataset goes
// through the real dataset writer so fixtures always match the pipeline's
// artifact layout, and the features stage can run against them without
// touching the weather API.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -roster-out testdata/roster.csv \
//	  -daily-out testdata/daily_weather.csv \
//	  -sites 8 -first-year 1980 -last-year 1984 -seed 1
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/croftlab/site-weather-etl/internal/dataset"
	"github.com/croftlab/site-weather-etl/internal/domain"
)

// site is one fixture location inside the upstream coverage window.
type site struct {
	name string
	lat  float64
	lon  float64
}

var baseSites = []site{
	{name: "Altus, OK", lat: 34.64, lon: -99.33},
	{name: "Bushland, TX", lat: 35.19, lon: -102.06},
	{name: "Garden City, KS", lat: 37.97, lon: -100.87},
	{name: "Akron, CO", lat: 40.15, lon: -103.14},
	{name: "Hays, KS", lat: 38.86, lon: -99.33},
	{name: "Lubbock, TX", lat: 33.59, lon: -101.87},
	{name: "Mead, NE", lat: 41.23, lon: -96.47},
	{name: "Stillwater, OK", lat: 36.12, lon: -97.09},
	{name: "Temple, TX", lat: 31.04, lon: -97.35},
	{name: "Tucson, AZ", lat: 32.28, lon: -110.94},
}

// extraColumns are the carried response-variable columns every fixture
// roster gets, exercising the carry-through path end to end.
var extraColumns = []string{"cultivar", "yield"}

var cultivars = []string{"TAM W-101", "Scout 66", "Karl 92", "Jagger", "Kharkof"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rosterOut := flag.String("roster-out", "", "output path for the roster fixture")
	dailyOut := flag.String("daily-out", "", "output path for the daily dataset fixture")
	sites := flag.Int("sites", 8, "number of sites")
	firstYear := flag.Int("first-year", 1980, "first roster year")
	lastYear := flag.Int("last-year", 1984, "last roster year")
	seed := flag.Int64("seed", 1, "RNG seed")
	flag.Parse()

	if *rosterOut == "" || *dailyOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -roster-out, -daily-out")
	}
	if *sites < 1 {
		return fmt.Errorf("-sites must be at least 1")
	}
	if *firstYear < 1980 || *lastYear < *firstYear {
		return fmt.Errorf("year range %d..%d is not valid", *firstYear, *lastYear)
	}
	if *lastYear > domain.Now().Year()-1 {
		return fmt.Errorf("year %d is not yet served upstream", *lastYear)
	}

	rng := rand.New(rand.NewSource(*seed))
	siteList := pickSites(rng, *sites)

	rosterRecords := [][]string{append([]string{"site", "year", "lat", "lon"}, extraColumns...)}
	ds := domain.DailyDataset{Variables: domain.DefaultVariables(), ExtraColumns: extraColumns}

	for _, s := range siteList {
		for year := *firstYear; year <= *lastYear; year++ {
			extra := []string{
				cultivars[rng.Intn(len(cultivars))],
				coord(domain.RoundTo(1.5+rng.Float64()*2.5, 2)),
			}
			rosterRecords = append(rosterRecords,
				append([]string{s.name, strconv.Itoa(year), coord(s.lat), coord(s.lon)}, extra...))

			sy := domain.SiteYear{Site: s.name, Year: year, Lat: s.lat, Lon: s.lon, Extra: extra}
			for yday := 1; yday <= domain.DaysInYear(year); yday++ {
				date, err := domain.DateForYday(year, yday)
				if err != nil {
					return fmt.Errorf("date for %s %d yday %d: %w", s.name, year, yday, err)
				}
				ds.Rows = append(ds.Rows, domain.DailyObservation{
					SiteYear: sy,
					Yday:     yday,
					Date:     date,
					Values:   dayValues(rng, s.lat, yday),
				})
			}
		}
	}

	// The roster keeps generation order; the dataset artifact is sorted,
	// matching what the fetch stage writes.
	domain.SortObservations(ds.Rows)

	years := *lastYear - *firstYear + 1
	log.Printf("roster: %d site-years across %d sites", len(siteList)*years, len(siteList))
	log.Printf("daily dataset: %d rows", len(ds.Rows))

	if err := writeRoster(*rosterOut, rosterRecords); err != nil {
		return fmt.Errorf("writing roster fixture: %w", err)
	}
	log.Printf("wrote roster fixture: %s", *rosterOut)

	if err := dataset.WriteDailyFile(*dailyOut, ds); err != nil {
		return fmt.Errorf("writing daily fixture: %w", err)
	}
	log.Printf("wrote daily fixture: %s", *dailyOut)

	printStats(ds)
	return nil
}

// pickSites takes the leading base sites and synthesizes plains locations
// beyond them, keeping coordinates inside the coverage window.
func pickSites(rng *rand.Rand, n int) []site {
	out := make([]site, 0, n)
	out = append(out, baseSites[:min(n, len(baseSites))]...)
	for i := len(out); i < n; i++ {
		out = append(out, site{
			name: fmt.Sprintf("Trial Site %02d", i+1),
			lat:  domain.RoundTo(31+rng.Float64()*12, 2),
			lon:  domain.RoundTo(-106+rng.Float64()*10, 2),
		})
	}
	return out
}

// dayValues synthesizes one day of weather. A shared sinusoid peaking in
// early July shapes the intensity variables; precipitation is sporadic.
func dayValues(rng *rand.Rand, lat float64, yday int) map[domain.Variable]float64 {
	season := math.Sin(2 * math.Pi * float64(yday-105) / 365.0)

	tmax := 18 + 14*season + rng.NormFloat64()*3
	tmin := tmax - 10 - rng.Float64()*4
	var prcp float64
	if rng.Float64() < 0.25 {
		prcp = rng.ExpFloat64() * 6
	}
	dayl := 43200 + 14400*season*(lat/60)
	srad := 330 + 140*season + rng.NormFloat64()*25
	vp := 900 + 650*season + rng.NormFloat64()*80

	return map[domain.Variable]float64{
		domain.VarDayLength:     domain.RoundTo(dayl, 2),
		domain.VarPrecipitation: domain.RoundTo(prcp, 2),
		domain.VarRadiation:     domain.RoundTo(srad, 2),
		domain.VarTempMax:       domain.RoundTo(tmax, 2),
		domain.VarTempMin:       domain.RoundTo(tmin, 2),
		domain.VarVaporPressure: domain.RoundTo(vp, 2),
	}
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeRoster(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printStats(ds domain.DailyDataset) {
	table, recordErrs := domain.Aggregate(ds, domain.DefaultAggregation(), domain.DefaultPrecision)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Daily rows: %d\n", len(ds.Rows))
	fmt.Printf("Wide rows: %d, feature columns: %d\n", len(table.Rows), len(table.Schema))
	fmt.Printf("Aggregation rejects: %d\n", len(recordErrs))

	for _, v := range ds.Variables {
		lo, hi := math.Inf(1), math.Inf(-1)
		var sum float64
		var n int
		for _, obs := range ds.Rows {
			val, ok := obs.Values[v]
			if !ok {
				continue
			}
			lo = math.Min(lo, val)
			hi = math.Max(hi, val)
			sum += val
			n++
		}
		if n == 0 {
			continue
		}
		fmt.Printf("%s: min=%.2f mean=%.2f max=%.2f\n", v, lo, sum/float64(n), hi)
	}

	if len(table.Rows) > 0 {
		printFirstRow(table)
	}
}

// printFirstRow spot-checks the January columns of the first wide row,
// the values pipeline tests assert against.
func printFirstRow(table domain.WideTable) {
	row := table.Rows[0]
	fmt.Printf("\nFirst wide row: %s\n", row.Key())
	for i, col := range table.Schema {
		if col.Month != time.January {
			continue
		}
		if f := row.Features[i]; f.Valid {
			fmt.Printf("  %s=%.*f\n", col.Name(), table.Precision, f.Value)
		}
	}
}
