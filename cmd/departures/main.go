package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jamespfennell/departures/board"
	"github.com/jamespfennell/departures/config"
	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
	"github.com/jamespfennell/departures/metrics"
	"github.com/jamespfennell/departures/poller"
	"github.com/jamespfennell/departures/server"
	"github.com/jamespfennell/departures/snapshot"
	"github.com/urfave/cli/v2"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the YAML configuration file",
		EnvVars: []string{"DEPARTURES_CONFIG"},
	}
	stopsFlag := &cli.StringFlag{
		Name:  "stops",
		Usage: "comma separated stop codes, overriding the configuration",
	}
	app := &cli.App{
		Name:  "departures",
		Usage: "real-time transit departure board",
		Commands: []*cli.Command{
			{
				Name:  "board",
				Usage: "print the departure board for the configured stops",
				Flags: []cli.Flag{
					configFlag,
					stopsFlag,
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "keep polling and print the board after every recompute",
					},
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "print the board as CSV",
					},
				},
				Action: func(ctx *cli.Context) error {
					a, err := newApp(ctx.String("config"), ctx.String("stops"))
					if err != nil {
						return err
					}
					output := func(result board.Result) {
						if ctx.Bool("csv") {
							b, err := board.ExportCSV(result.Arrivals, result.GeneratedAt)
							if err != nil {
								log.Printf("Failed to export board: %s", err)
								return
							}
							os.Stdout.Write(b)
							return
						}
						renderBoard(os.Stdout, result)
					}
					if !ctx.Bool("watch") {
						result := a.recomputeOnce(ctx.Context)
						output(result)
						if result.NoData {
							return errors.New("no static or real-time data available")
						}
						return nil
					}
					runCtx, cancel := signalContext(ctx.Context)
					defer cancel()
					p := a.newPoller(output)
					if err := p.Run(runCtx); !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				},
			},
			{
				Name:  "serve",
				Usage: "serve the departure board over HTTP",
				Flags: []cli.Flag{
					configFlag,
					stopsFlag,
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address, overriding the configuration",
					},
				},
				Action: func(ctx *cli.Context) error {
					a, err := newApp(ctx.String("config"), ctx.String("stops"))
					if err != nil {
						return err
					}
					addr := a.cfg.Server.Addr
					if ctx.String("addr") != "" {
						addr = ctx.String("addr")
					}
					runCtx, cancel := signalContext(ctx.Context)
					defer cancel()
					p := a.newPoller(nil)
					go func() {
						if err := p.Run(runCtx); !errors.Is(err, context.Canceled) {
							log.Printf("Poller stopped: %s", err)
						}
					}()
					srv := &http.Server{
						Addr: addr,
						Handler: server.NewRouter(p, server.Options{
							AllowedOrigins: a.cfg.Server.AllowedOrigins,
							Metrics:        a.metrics,
						}),
					}
					go func() {
						<-runCtx.Done()
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						srv.Shutdown(shutdownCtx)
					}()
					log.Printf("Listening on %s", addr)
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						return err
					}
					return nil
				},
			},
			{
				Name:      "static",
				Usage:     "parse a GTFS static archive",
				ArgsUsage: "path",
				Action: func(ctx *cli.Context) error {
					path := "google_transit.zip"
					if ctx.Args().Len() > 0 {
						path = ctx.Args().First()
					}
					b, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read file %s: %w", path, err)
					}
					static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{Quiet: true})
					if err != nil {
						return fmt.Errorf("failed to parse GTFS static data: %w", err)
					}
					fmt.Println("Num agencies", len(static.Agencies))
					fmt.Println("Num routes", len(static.Routes))
					fmt.Println("Num stops", len(static.Stops))
					fmt.Println("Num trips", len(static.Trips))
					fmt.Println("Num warnings", len(static.Warnings))
					return nil
				},
			},
			{
				Name:  "realtime",
				Usage: "parse a GTFS realtime message",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "print the stop time updates of each trip",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "encoding of the message: protobuf or json",
						Value: string(snapshot.FormatProtobuf),
					},
				},
				ArgsUsage: "path",
				Action: func(ctx *cli.Context) error {
					args := ctx.Args()
					if args.Len() == 0 {
						return fmt.Errorf("a path to the GTFS realtime message was not provided")
					}
					path := ctx.Args().First()
					b, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read file %s: %w", path, err)
					}
					format, err := snapshot.ParseFormat(ctx.String("format"))
					if err != nil {
						return err
					}
					var realtime *gtfs.Realtime
					if format == snapshot.FormatJSON {
						realtime, err = gtfs.ParseRealtimeJSON(b, &gtfs.ParseRealtimeOptions{})
					} else {
						realtime, err = gtfs.ParseRealtime(b, &gtfs.ParseRealtimeOptions{})
					}
					if err != nil {
						return fmt.Errorf("failed to parse message: %w", err)
					}
					fmt.Printf("Created at %s\n", realtime.CreatedAt)
					fmt.Printf("%d trips:\n", len(realtime.Trips))
					for _, trip := range realtime.Trips {
						fmt.Printf("- %s\n", formatTrip(trip, 2, ctx.Bool("verbose")))
					}
					fmt.Printf("%d warnings:\n", len(realtime.Warnings))
					for _, w := range realtime.Warnings {
						fmt.Printf("- entity %s: %s\n", w.EntityID(), w.Error())
					}
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

// app holds the collaborators built from the configuration.
type app struct {
	cfg      *config.Config
	board    *board.Board
	static   *snapshot.StaticProvider
	realtime *snapshot.RealtimeProvider
	metrics  *metrics.Collector
}

func newApp(configPath, stops string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if stops != "" {
		cfg.Stops = strings.Split(stops, ",")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	format, err := cfg.RealtimeFormat()
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: cfg.Timeout()}
	return &app{
		cfg:   cfg,
		board: board.New(cfg.BoardOptions()),
		static: snapshot.NewStaticProvider(snapshot.StaticOptions{
			Source:   cfg.Feeds.StaticURL,
			Timezone: loc,
			Client:   client,
			Cache:    snapshot.NewCache[*index.Static](cfg.StaticTTL(), nil),
		}),
		realtime: snapshot.NewRealtimeProvider(snapshot.RealtimeOptions{
			Source:   cfg.Feeds.RealtimeURL,
			Format:   format,
			Timezone: loc,
			Client:   client,
			// Expires before the next tick so that every poll fetches the feed.
			Cache: snapshot.NewCache[*index.Realtime](cfg.RefreshInterval()/2, nil),
		}),
		metrics: metrics.NewCollector(cfg.RefreshInterval()),
	}, nil
}

func (a *app) newPoller(onResult func(board.Result)) *poller.Poller {
	return poller.New(a.board, a.static, a.realtime, poller.Options{
		RefreshInterval: a.cfg.RefreshInterval(),
		DebounceDelay:   a.cfg.DebounceDelay(),
		Stops:           a.cfg.Stops,
		Metrics:         a.metrics,
		OnResult:        onResult,
	})
}

func (a *app) recomputeOnce(ctx context.Context) board.Result {
	var snapshots board.Snapshots
	snapshots.Static, snapshots.StaticErr = a.static.Latest(ctx)
	snapshots.Realtime, snapshots.RealtimeErr = a.realtime.Latest(ctx)
	return a.board.Recompute(time.Now(), a.cfg.Stops, snapshots)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
