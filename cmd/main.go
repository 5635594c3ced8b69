package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/kenaz/engine"
	"github.com/aukilabs/kenaz/featureflag"
	kenazhttp "github.com/aukilabs/kenaz/http"
	kwebsocket "github.com/aukilabs/kenaz/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Kenaz version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "kenaz_info",
		Help:        "Kenaz information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"KENAZ_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"KENAZ_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"KENAZ_PUBLIC_ENDPOINT"      help:"The public endpoint where this Kenaz server is reachable."`
	LogLevel           string        `cli:""        env:"KENAZ_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"KENAZ_LOG_INDENT"           help:"Indent logs."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"KENAZ_SYNC_CLOCK_INTERVAL"  help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"KENAZ_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"KENAZ_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Engine             engineConfig  `cli:",hidden" env:"-"                          help:"Engine configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"KENAZ_FEATURE_FLAGS"        help:"Comma separated feature flags."`
	Version            bool          `cli:""        env:"-"                          help:"Show version."`
	Help               bool          `cli:""        env:"-"                          help:"Show help."`
}

type engineConfig struct {
	VoxelSize            float64       `cli:",hidden" env:"KENAZ_VOXEL_SIZE"             help:"The edge length of a voxel index cell in world units."`
	RenderDistance       float64       `cli:",hidden" env:"KENAZ_RENDER_DISTANCE"        help:"The camera frustum reach in world units."`
	BestRefreshPeriod    time.Duration `cli:",hidden" env:"KENAZ_BEST_REFRESH_PERIOD"    help:"The refresh period granted to the largest on-screen objects."`
	WorstRefreshPeriod   time.Duration `cli:",hidden" env:"KENAZ_WORST_REFRESH_PERIOD"   help:"The refresh period granted to the smallest on-screen objects."`
	TargetQueryTime      time.Duration `cli:",hidden" env:"KENAZ_TARGET_QUERY_TIME"      help:"The traversal cost the throttling curve converges on."`
	IngestBudget         time.Duration `cli:",hidden" env:"KENAZ_INGEST_BUDGET"          help:"The per-query time budget for applying queued reindex work."`
	PollBudget           time.Duration `cli:",hidden" env:"KENAZ_POLL_BUDGET"            help:"The per-query time budget for refreshing polled objects."`
	GracePeriod          time.Duration `cli:",hidden" env:"KENAZ_GRACE_PERIOD"           help:"How long a voxel's visibility verdict is trusted without re-testing."`
	CornerSampleFraction float64       `cli:",hidden" env:"KENAZ_CORNER_SAMPLE_FRACTION" help:"The radius to voxel size ratio above which objects are indexed by their corners."`
}

func main() {
	defaults := engine.DefaultConfig()

	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Engine: engineConfig{
			VoxelSize:            defaults.VoxelSize,
			RenderDistance:       defaults.RenderDistance,
			BestRefreshPeriod:    defaults.BestRefreshPeriod,
			WorstRefreshPeriod:   defaults.WorstRefreshPeriod,
			TargetQueryTime:      defaults.TargetQueryTime,
			IngestBudget:         defaults.IngestBudget,
			PollBudget:           defaults.PollBudget,
			GracePeriod:          defaults.GracePeriod,
			CornerSampleFraction: defaults.CornerSampleFraction,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Kenaz server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	engineConf := engine.Config{
		VoxelSize:            conf.Engine.VoxelSize,
		RenderDistance:       conf.Engine.RenderDistance,
		BestRefreshPeriod:    conf.Engine.BestRefreshPeriod,
		WorstRefreshPeriod:   conf.Engine.WorstRefreshPeriod,
		TargetQueryTime:      conf.Engine.TargetQueryTime,
		IngestBudget:         conf.Engine.IngestBudget,
		PollBudget:           conf.Engine.PollBudget,
		GracePeriod:          conf.Engine.GracePeriod,
		CornerSampleFraction: conf.Engine.CornerSampleFraction,
	}
	featureFlags := featureflag.New(conf.FeatureFlags)

	var service http.ServeMux
	service.Handle("/health", kenazhttp.HandleWithCORS(http.HandlerFunc(kenazhttp.HandleHealthCheck)))
	service.Handle("/ready", kenazhttp.HandleWithCORS(kenazhttp.HandleReadyCheck(func() bool {
		return true
	})))
	service.Handle("/version", kenazhttp.HandleWithCORS(kenazhttp.HandleVersion(version)))

	service.Handle("/", kenazhttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h kwebsocket.Handler = &kwebsocket.RealtimeHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				EngineConfig:            engineConf,
				FeatureFlags:            featureFlags,
			}
			h = kwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = kwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			kwebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", kenazhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("voxel_size", conf.Engine.VoxelSize).
		WithTag("render_distance", conf.Engine.RenderDistance).
		Info("starting kenaz server")

	kenazhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			kenazhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if conf.Engine.VoxelSize <= 0 {
		return errors.New("voxel size must be positive").
			WithTag("voxel_size", conf.Engine.VoxelSize)
	}
	if conf.Engine.RenderDistance <= 0 {
		return errors.New("render distance must be positive").
			WithTag("render_distance", conf.Engine.RenderDistance)
	}
	if conf.Engine.BestRefreshPeriod <= 0 ||
		conf.Engine.WorstRefreshPeriod < conf.Engine.BestRefreshPeriod {
		return errors.New("refresh periods must be positive and ordered").
			WithTag("best_refresh_period", conf.Engine.BestRefreshPeriod).
			WithTag("worst_refresh_period", conf.Engine.WorstRefreshPeriod)
	}
	return nil
}
