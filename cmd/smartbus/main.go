package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"smartbus/internal/bridge"
	"smartbus/internal/carousel"
	"smartbus/internal/config"
	"smartbus/internal/fleet"
	"smartbus/internal/location"
	"smartbus/internal/metrics"
	"smartbus/internal/route"
	"smartbus/internal/session"
	"smartbus/internal/store"
	"smartbus/internal/surface"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrvCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TrackInterval, cfg.BusInterval, cfg.CarouselInterval)
		mctx, mcancel := context.WithCancel(ctx)
		metricsSrvCancel = mcancel
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-mctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Session flags live in a local sqlite file, injected rather than ambient
	sess, err := session.Open(cfg.SessionDBPath)
	if err != nil {
		log.Fatalf("session store error: %v", err)
	}
	defer sess.Close()
	if loggedIn, err := sess.LoggedIn(ctx); err != nil {
		log.Printf("session read error: %v", err)
	} else {
		log.Printf("session logged_in=%v", loggedIn)
	}

	// Promo items and the bus fleet come from Postgres when configured,
	// otherwise from built-in defaults.
	var promoSource carousel.Source = carousel.StaticItems(defaultPromos())
	buses := fleet.DefaultFleet()
	if cfg.DatabaseURL != "" {
		sqlDB, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer sqlDB.Close()
		if err := store.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		st := store.New(sqlDB)
		promoSource = st
		if registered, err := st.Fleet(ctx); err != nil {
			log.Printf("fleet registry error: %v (using defaults)", err)
		} else if len(registered) > 0 {
			buses = registered
		}
	}

	// Surface transport
	surf, err := surface.Connect(cfg.NATSURL, cfg.SurfacePrefix, cfg.LogSurfaceSubjects, mcol)
	if err != nil {
		log.Fatalf("surface transport error: %v", err)
	}
	defer surf.Close()

	// Bridge channel: buffers until the surface announces readiness
	ch := bridge.NewChannel(mcol)
	defer ch.Close()
	if err := surf.OnEvent(ch.HandleInbound); err != nil {
		log.Fatalf("surface events subscribe error: %v", err)
	}
	if err := surf.OnReady(func() {
		ch.Attach(surf)
		if placed, ok := ch.LastPlaced(); ok {
			log.Printf("last placed marker: %.6f,%.6f", placed.Lat, placed.Lng)
		}
	}); err != nil {
		log.Fatalf("surface ready subscribe error: %v", err)
	}

	// Location watcher feeds the bridge. Permission denial is terminal for
	// the session but nothing crashes; the surface simply shows no user
	// marker.
	watcher := location.NewSimWatcher(cfg.Origin, cfg.LocationGranted)
	var locSub location.Subscription
	if err := watcher.RequestPermission(ctx); err != nil {
		log.Printf("location status: %v", err)
	} else {
		if initial, err := watcher.CurrentPosition(ctx); err != nil {
			log.Printf("initial position error: %v", err)
		} else {
			ch.SendUser(initial)
		}
		locSub, err = watcher.Subscribe(func(s location.Sample) {
			if mcol != nil {
				mcol.LocationSamples.Inc()
			}
			ch.SendUser(s)
		}, cfg.LocationInterval, cfg.LocationMinDistanceM)
		if err != nil {
			log.Printf("location subscribe error: %v", err)
		}
	}

	// Bus broadcast simulator
	fleetSim := fleet.NewSimulator(buses, ch, cfg.BusInterval, mcol)
	fleetSim.Start(ctx)

	// Route tracker: fetch the path once, then walk it on a fixed cadence
	directions := route.NewDirectionsClient(cfg.DirectionsURL, cfg.DirectionsAPIKey)
	tracker := route.NewTracker(directions, surf, "main", cfg.TrackInterval, mcol)
	if err := tracker.Start(ctx, cfg.Origin, cfg.Destination); err != nil {
		if errors.Is(err, route.ErrRouteUnavailable) {
			log.Printf("route status: no route found")
		} else {
			log.Printf("tracker start error: %v", err)
		}
	}

	// Promo carousel
	crsl := carousel.NewController(promoSource, surf, cfg.CarouselCount, cfg.CarouselInterval, cfg.CarouselResetDelay, mcol)
	if err := crsl.Load(ctx); err != nil {
		log.Printf("carousel status: %v", err)
	} else {
		crsl.Start(ctx)
	}

	// Block until context cancelled
	<-ctx.Done()

	tracker.Stop()
	fleetSim.Stop()
	crsl.Close()
	if locSub != nil {
		locSub.Cancel()
	}
	ch.Close()
	if metricsSrvCancel != nil {
		metricsSrvCancel()
	}
	log.Println("shutdown complete")
}

func defaultPromos() []carousel.Item {
	return []carousel.Item{
		{ID: "p1", Title: "Monthly pass at 20% off", ImageRef: "promos/pass.png"},
		{ID: "p2", Title: "New AC route 401 now live", ImageRef: "promos/route401.png"},
		{ID: "p3", Title: "Refer a friend, ride free", ImageRef: "promos/refer.png"},
		{ID: "p4", Title: "Night service extended", ImageRef: "promos/night.png"},
		{ID: "p5", Title: "Track your bus live", ImageRef: "promos/track.png"},
		{ID: "p6", Title: "Student concessions open", ImageRef: "promos/student.png"},
	}
}
