package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/jamespfennell/departures/board"
	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
)

var out = flag.String("out", "departures_profile.pb.gz", "file path to output the profile to")
var realtimePath = flag.String("realtime", "", "optional GTFS realtime message to reconcile against")
var stops = flag.String("stops", "", "comma separated stop codes to recompute the board for")
var recomputes = flag.Int("recomputes", 100, "number of board recomputes per static file")

func main() {
	if err := run(); err != nil {
		fmt.Println("failed:", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	gtfsFiles := flag.Args()
	var gtfsBytes [][]byte
	for _, gtfsFile := range gtfsFiles {
		b, err := os.ReadFile(gtfsFile)
		if err != nil {
			return err
		}
		gtfsBytes = append(gtfsBytes, b)
	}
	var realtime *index.Realtime
	if *realtimePath != "" {
		b, err := os.ReadFile(*realtimePath)
		if err != nil {
			return err
		}
		feed, err := gtfs.ParseRealtime(b, &gtfs.ParseRealtimeOptions{})
		if err != nil {
			return err
		}
		realtime = index.NewRealtime(feed)
	}
	stopCodes := strings.Split(*stops, ",")
	b := board.New(board.Options{MaxStops: len(stopCodes)})

	fmt.Println("starting profile")
	var profile bytes.Buffer
	pprof.StartCPUProfile(&profile)
	for i, in := range gtfsBytes {
		fmt.Printf("parsing file %d/%d\n", i+1, len(gtfsBytes))
		static, err := gtfs.ParseStatic(in, gtfs.ParseStaticOptions{Quiet: true})
		if err != nil {
			return err
		}
		s := index.NewStatic(static, index.StaticOptions{})
		now := time.Now()
		var numArrivals int
		for j := 0; j < *recomputes; j++ {
			result := b.Recompute(now, stopCodes, board.Snapshots{Static: s, Realtime: realtime})
			numArrivals = len(result.Arrivals)
		}
		fmt.Printf("recomputed board %d times: %d arrivals\n", *recomputes, numArrivals)
	}
	pprof.StopCPUProfile()

	fmt.Println("writing profile to", *out)
	os.WriteFile(*out, profile.Bytes(), 0644)
	return nil
}
