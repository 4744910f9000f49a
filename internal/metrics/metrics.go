package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	BridgeState       prometheus.Gauge       // 0 uninitialized, 1 ready, 2 active
	MessagesForwarded *prometheus.CounterVec // type label: user|buses
	MessagesDropped   *prometheus.CounterVec // reason label
	PlacedAcks        prometheus.Counter

	LocationSamples prometheus.Counter

	TrackerTicks  prometheus.Counter
	RouteProgress prometheus.Gauge

	CarouselTicks prometheus.Counter
	CarouselWraps prometheus.Counter

	FleetBroadcasts prometheus.Counter

	SurfaceConnected prometheus.Gauge
	PublishDuration  prometheus.Histogram

	TrackInterval    prometheus.Gauge // seconds
	BusInterval      prometheus.Gauge // seconds
	CarouselInterval prometheus.Gauge // seconds
}

func NewCollector(trackInterval, busInterval, carouselInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		BridgeState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_bridge_state",
			Help: "Bridge channel state: 0 uninitialized, 1 ready, 2 active.",
		}),
		MessagesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbus_bridge_forwarded_total",
			Help: "Messages forwarded to the rendering surface.",
		}, []string{"type"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartbus_bridge_dropped_total",
			Help: "Messages dropped at the bridge boundary.",
		}, []string{"reason"}),
		PlacedAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_bridge_placed_acks_total",
			Help: "Placement acknowledgments received from the surface.",
		}),
		LocationSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_location_samples_total",
			Help: "Location samples delivered by the watcher.",
		}),
		TrackerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_tracker_ticks_total",
			Help: "Route tracker timer ticks.",
		}),
		RouteProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_route_progress",
			Help: "Fraction of the tracked route covered, 0..1.",
		}),
		CarouselTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_carousel_ticks_total",
			Help: "Carousel advance ticks.",
		}),
		CarouselWraps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_carousel_wraps_total",
			Help: "Carousel seam wraps (clone frame reached).",
		}),
		FleetBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartbus_fleet_broadcasts_total",
			Help: "Bus fleet broadcasts generated.",
		}),
		SurfaceConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_surface_connected",
			Help: "1 if the surface transport connection is established.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartbus_publish_duration_seconds",
			Help:    "Duration to marshal and publish a surface message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TrackInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_track_interval_seconds",
			Help: "Route tracker cadence in seconds.",
		}),
		BusInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_bus_interval_seconds",
			Help: "Fleet broadcast cadence in seconds.",
		}),
		CarouselInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartbus_carousel_interval_seconds",
			Help: "Carousel cadence in seconds.",
		}),
	}

	reg.MustRegister(
		c.BridgeState, c.MessagesForwarded, c.MessagesDropped, c.PlacedAcks,
		c.LocationSamples,
		c.TrackerTicks, c.RouteProgress,
		c.CarouselTicks, c.CarouselWraps,
		c.FleetBroadcasts,
		c.SurfaceConnected, c.PublishDuration,
		c.TrackInterval, c.BusInterval, c.CarouselInterval,
	)

	c.TrackInterval.Set(trackInterval.Seconds())
	c.BusInterval.Set(busInterval.Seconds())
	c.CarouselInterval.Set(carouselInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
