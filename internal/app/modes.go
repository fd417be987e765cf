package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/buyalert/internal/domain"
	"github.com/alanyoungcy/buyalert/internal/feed"
	"github.com/alanyoungcy/buyalert/internal/media"
	"github.com/alanyoungcy/buyalert/internal/notify"
	"github.com/alanyoungcy/buyalert/internal/orderbook"
	"github.com/alanyoungcy/buyalert/internal/platform/ascendex"
	"github.com/alanyoungcy/buyalert/internal/platform/coinex"
	"github.com/alanyoungcy/buyalert/internal/platform/nonkyc"
	"github.com/alanyoungcy/buyalert/internal/server"
	"github.com/alanyoungcy/buyalert/internal/server/handler"
	"github.com/alanyoungcy/buyalert/internal/service"
)

const (
	heartbeatInterval = 60 * time.Second
	quoteRateTTL      = 60 * time.Second
	tradeBuffer       = 256
)

// core is the state shared by every mode: the availability gate, the
// threshold, and the reference market data client.
type core struct {
	monitor   *service.AvailabilityMonitor
	threshold *service.ThresholdController
	market    *nonkyc.Client
}

// streams holds the runnable venue loops of alerting modes.
type streams struct {
	connectors []*feed.Connector
	trackers   []*feed.OrderBookTracker
}

// AlertMode streams trades from every enabled venue and delivers alerts to
// Telegram and Discord.
func (a *App) AlertMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting alert mode")
	return a.runAlerting(ctx, deps, a.newDispatcher(deps))
}

// DryRunMode runs the full trade pipeline but only logs rendered alerts.
func (a *App) DryRunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting dry-run mode")
	return a.runAlerting(ctx, deps, notify.NewDryRun(a.formatOptions(), a.logger))
}

// MonitorMode runs availability probing, the heartbeat and the status server.
// No streams are opened.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting monitor mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.monitor.Run(ctx) })
	g.Go(func() error { return service.RunHeartbeat(ctx, heartbeatInterval, c.monitor, c.threshold, nil, a.logger) })
	a.startHTTPServer(ctx, g, deps, c)
	return g.Wait()
}

func (a *App) runAlerting(ctx context.Context, deps *Dependencies, dispatcher service.AlertDispatcher) error {
	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}

	trades := make(chan domain.Trade, tradeBuffer)
	st := a.buildStreams(c, trades)
	if len(st.connectors) == 0 && len(st.trackers) == 0 {
		return errors.New("app: no exchange streams enabled")
	}

	agg := service.NewTradeAggregator(service.AggregatorConfig{
		Enabled: a.cfg.TradeAggregation.Enabled,
		Window:  a.cfg.TradeAggregation.Window(),
	}, c.threshold, service.NewQuoteConverter(c.market, quoteRateTTL), a.logger)

	pipeline := service.NewPipeline(service.PipelineDeps{
		Aggregator:    agg,
		Threshold:     c.threshold,
		Dispatcher:    dispatcher,
		Market:        c.market,
		Sinks:         deps.Sinks,
		Audit:         deps.AuditStore,
		Archive:       deps.BlobWriter,
		ArchivePrefix: a.cfg.S3.ArchivePrefix,
		SweepInterval: a.cfg.TradeAggregation.SweepInterval.Duration,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.monitor.Run(ctx) })
	for _, conn := range st.connectors {
		g.Go(func() error { return conn.Run(ctx) })
	}
	for _, tr := range st.trackers {
		g.Go(func() error { return tr.Run(ctx) })
	}
	g.Go(func() error { return pipeline.Run(ctx, trades) })
	activity := make([]service.StreamActivity, 0, len(st.connectors))
	for _, conn := range st.connectors {
		activity = append(activity, conn)
	}
	g.Go(func() error {
		return service.RunHeartbeat(ctx, heartbeatInterval, c.monitor, c.threshold, activity, a.logger)
	})
	a.startHTTPServer(ctx, g, deps, c)

	a.logger.InfoContext(ctx, "app: streams started",
		slog.Int("connectors", len(st.connectors)),
		slog.Int("orderbook_trackers", len(st.trackers)),
		slog.Float64("threshold", c.threshold.Current()),
	)
	return g.Wait()
}

// buildCore creates the availability monitor over every enabled venue's
// prober and the threshold controller, restoring a persisted threshold
// when one exists.
func (a *App) buildCore(ctx context.Context, deps *Dependencies) (*core, error) {
	ex := a.cfg.Exchanges
	market := nonkyc.NewClient(ex.NonKYC.RestURL, a.referencePair())

	var probers []service.Prober
	if ex.NonKYC.Enabled {
		pp := []service.Prober{market}
		for _, pair := range ex.NonKYC.Pairs {
			if pair != a.referencePair() {
				pp = append(pp, nonkyc.NewClient(ex.NonKYC.RestURL, pair))
			}
		}
		probers = append(probers, service.NewAnyPairProber(pp...))
	}
	if ex.CoinEx.Enabled {
		pp := make([]service.Prober, 0, len(ex.CoinEx.Pairs))
		for _, pair := range ex.CoinEx.Pairs {
			pp = append(pp, coinex.NewClient(ex.CoinEx.RestURL, pair))
		}
		probers = append(probers, service.NewAnyPairProber(pp...))
	}
	if ex.AscendEX.Enabled {
		pp := make([]service.Prober, 0, len(ex.AscendEX.Pairs))
		for _, pair := range ex.AscendEX.Pairs {
			pp = append(pp, ascendex.NewClient(ex.AscendEX.RestURL, pair))
		}
		probers = append(probers, service.NewAnyPairProber(pp...))
	}

	monitor := service.NewAvailabilityMonitor(probers,
		a.cfg.Availability.CheckInterval.Duration,
		a.cfg.Availability.PollInterval.Duration,
		service.AvailabilityHooks{Cache: deps.StateCache, Bus: deps.SignalBus, Audit: deps.AuditStore},
		a.logger,
	)

	initial := a.cfg.ValueRequire
	if deps.Settings != nil {
		v, ok, err := deps.Settings.LoadThreshold(ctx)
		switch {
		case err != nil:
			a.logger.WarnContext(ctx, "app: load persisted threshold", slog.String("error", err.Error()))
		case ok:
			a.logger.InfoContext(ctx, "app: restored persisted threshold",
				slog.Float64("value", v),
				slog.Float64("configured", initial),
			)
			initial = v
		}
	}

	dt := a.cfg.DynamicThreshold
	threshold := service.NewThresholdController(service.ThresholdConfig{
		Initial:          initial,
		Dynamic:          dt.Enabled,
		BaseValue:        dt.BaseValue,
		VolumeMultiplier: dt.VolumeMultiplier,
		Interval:         dt.PriceCheckInterval.Duration,
		Min:              dt.MinThreshold,
		Max:              dt.MaxThreshold,
	}, market, deps.ThresholdStores, deps.StateCache, deps.AuditStore, a.logger)

	return &core{monitor: monitor, threshold: threshold, market: market}, nil
}

// referencePair is the NonKYC pair used for volume, market context and
// quote conversion.
func (a *App) referencePair() string {
	if pairs := a.cfg.Exchanges.NonKYC.Pairs; len(pairs) > 0 {
		return pairs[0]
	}
	return strings.ToUpper(a.cfg.Asset) + "/USDT"
}

func (a *App) buildStreams(c *core, out chan<- domain.Trade) streams {
	ex := a.cfg.Exchanges
	rc := a.cfg.Reconnect
	policy := feed.ReconnectPolicy{
		InitialDelay:   rc.InitialDelay.Duration,
		MaxDelay:       rc.MaxDelay.Duration,
		RateLimitedMax: rc.RateLimitedMax.Duration,
		ReadTimeout:    rc.ReadTimeout.Duration,
	}

	var st streams
	if ex.NonKYC.Enabled {
		venue := nonkyc.NewVenue(ex.NonKYC.WsURL, a.referencePair())
		st.connectors = append(st.connectors, feed.NewConnector(venue, ex.NonKYC.Pairs, c.monitor, policy, out, a.logger))

		if ex.NonKYC.Orderbook && a.cfg.SweepOrders.Enabled {
			so := a.cfg.SweepOrders
			detector := orderbook.NewSweepDetector(orderbook.SweepConfig{
				MinValue: so.MinValue,
				MaxAvgPrice: map[string]float64{
					"USDT": so.MaxAvgPriceUSDT,
					"BTC":  so.MaxAvgPriceBTC,
				},
				MarketURL: venue.MarketURL,
			})
			for _, pair := range ex.NonKYC.Pairs {
				st.trackers = append(st.trackers,
					feed.NewOrderBookTracker(venue, pair, so.Depth, detector, c.monitor, policy, out, a.logger))
			}
		}
	}
	if ex.CoinEx.Enabled {
		venue := coinex.NewVenue(ex.CoinEx.WsURL, ex.CoinEx.Pairs)
		st.connectors = append(st.connectors, feed.NewConnector(venue, ex.CoinEx.Pairs, c.monitor, policy, out, a.logger))
	}
	if ex.AscendEX.Enabled {
		venue := ascendex.NewVenue(ex.AscendEX.WsURL)
		st.connectors = append(st.connectors, feed.NewConnector(venue, ex.AscendEX.Pairs, c.monitor, policy, out, a.logger))
	}
	return st
}

func (a *App) formatOptions() notify.FormatOptions {
	offset := a.cfg.Delivery.UTCOffsetHours
	return notify.FormatOptions{
		Asset:        strings.ToUpper(a.cfg.Asset),
		MaxBreakdown: a.cfg.Delivery.MaxBreakdownLines,
		Location:     time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*3600),
	}
}

// newDispatcher builds the delivering dispatcher: Telegram and Discord
// platforms, a media source and a per-target pacer. The Redis limiter paces
// across replicas when available.
func (a *App) newDispatcher(deps *Dependencies) *notify.Dispatcher {
	var platforms []notify.Platform
	if len(a.cfg.ActiveChatIDs) > 0 && a.cfg.Telegram.BotToken != "" {
		platforms = append(platforms, notify.NewTelegramPlatform(
			a.cfg.Telegram.APIBase,
			a.cfg.Telegram.BotToken,
			a.cfg.ActiveChatIDs,
			a.cfg.Telegram.Timeout.Duration,
		))
	}
	if len(a.cfg.Discord.WebhookURLs) > 0 {
		platforms = append(platforms, notify.NewDiscordPlatform(a.cfg.Discord.WebhookURLs, a.cfg.Telegram.Timeout.Duration))
	}

	var mediaSource domain.MediaSource
	if deps.BlobReader != nil && a.cfg.Media.S3Prefix != "" {
		mediaSource = media.NewBlobSource(deps.BlobReader, a.cfg.Media.S3Prefix)
	} else {
		mediaSource = media.NewDirSource(a.cfg.Media.Dir, a.cfg.Media.DefaultImage)
	}

	var pacer notify.Pacer
	if deps.RateLimiter != nil {
		pacer = deps.RateLimiter
	} else {
		pacer = notify.NewRatePacer(a.cfg.Delivery.PerTargetInterval.Duration)
	}

	return notify.NewDispatcher(platforms, mediaSource, pacer, a.formatOptions(), a.logger)
}

// startHTTPServer adds the status server and its shutdown watcher to g when
// the server is enabled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	if !a.cfg.Server.Enabled {
		return
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(a.cfg.Mode, c.threshold, c.monitor),
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}
	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		RequestsPerMinute: a.cfg.Server.RequestsPerMinute,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
