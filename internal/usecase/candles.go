package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/internal/services/features"
	applogger "FinFeat/pkg/logger"
)

var (
	ErrNoCandles    = errors.New("no candles")
	ErrInvalidRange = errors.New("from must be <= to")
	ErrSyncDisabled = errors.New("candle sync needs a downloader and a sink")
)

// CandlesUseCase serves candle history, feature previews and candle sync.
type CandlesUseCase struct {
	source     domrepo.CandleSource
	registry   *features.Registry
	downloader domrepo.CandleSource
	sink       domrepo.CandleSink
	metrics    domrepo.Metrics
	log        *applogger.Logger
}

type CandlesOption func(*CandlesUseCase)

// WithSync enables Sync: candles are read from downloader and written to sink.
func WithSync(downloader domrepo.CandleSource, sink domrepo.CandleSink) CandlesOption {
	return func(uc *CandlesUseCase) {
		uc.downloader = downloader
		uc.sink = sink
	}
}

func NewCandlesUseCase(
	source domrepo.CandleSource,
	registry *features.Registry,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	opts ...CandlesOption,
) *CandlesUseCase {
	if log == nil {
		log = applogger.Nop()
	}
	uc := &CandlesUseCase{source: source, registry: registry, metrics: metrics, log: log.With("candles")}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, errors.New("symbol required")
	}
	if p.From.After(p.To) {
		return nil, ErrInvalidRange
	}
	if p.Limit <= 0 {
		p.Limit = 1000
	}
	if p.Limit > 5000 {
		p.Limit = 5000
	}

	candles, err := uc.source.GetCandles(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}

// Schemes lists every registered feature scheme.
func (uc *CandlesUseCase) Schemes() ([]models.SchemeInfo, error) {
	names := uc.registry.Names()
	out := make([]models.SchemeInfo, 0, len(names))
	for _, n := range names {
		info, err := uc.Scheme(n, false)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Scheme describes one scheme, optionally with its ordered column names.
func (uc *CandlesUseCase) Scheme(name string, withNames bool) (models.SchemeInfo, error) {
	ext, err := uc.registry.Extractor(name)
	if err != nil {
		return models.SchemeInfo{}, err
	}
	info := models.SchemeInfo{Name: ext.Scheme(), WarmUp: ext.WarmUp(), NumFeatures: len(ext.Names())}
	if withNames {
		info.Names = ext.Names()
	}
	return info, nil
}

// Features extracts the latest candles of a symbol and returns the last rows.
func (uc *CandlesUseCase) Features(ctx context.Context, req models.FeaturesRequest) (*models.FeaturesResponse, error) {
	ext, err := uc.registry.Extractor(req.Scheme)
	if err != nil {
		return nil, err
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)
	candles, err := uc.source.GetLatestNCandles(ctx, req.Symbol, req.Limit, tf)
	if err != nil {
		return nil, fmt.Errorf("features %s: %w", req.Symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoCandles, req.Symbol, tf)
	}
	m, err := ext.Extract(candles)
	if err != nil {
		return nil, fmt.Errorf("features %s: %w", req.Symbol, err)
	}
	rows := [][]float64(m)
	if req.Rows > 0 && len(rows) > req.Rows {
		rows = rows[len(rows)-req.Rows:]
	}
	return &models.FeaturesResponse{
		Symbol:  req.Symbol,
		Scheme:  ext.Scheme(),
		Names:   ext.Names(),
		Candles: len(candles),
		Rows:    rows,
	}, nil
}

// SyncResult reports stored candle counts per instrument.
type SyncResult struct {
	Family string         `json:"family"`
	Stored map[string]int `json:"stored"`
	Failed []string       `json:"failed,omitempty"`
}

// Sync downloads the history a family build needs and stores it in the sink,
// so later builds can run from ClickHouse or files. Per-instrument failures
// are reported, not returned.
func (uc *CandlesUseCase) Sync(ctx context.Context, cfg BuildConfig) (*SyncResult, error) {
	if uc.downloader == nil || uc.sink == nil {
		return nil, ErrSyncDisabled
	}
	res := &SyncResult{Family: cfg.Family, Stored: make(map[string]int, len(cfg.Instruments))}
	for _, symbol := range cfg.Instruments {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		candles, err := uc.downloader.GetLatestNCandles(ctx, symbol, cfg.Candles, cfg.Timeframe)
		if err == nil {
			uc.metrics.RecordCandlesFetched("sync", symbol, len(candles))
			err = uc.sink.StoreCandles(ctx, cfg.Timeframe, candles)
		}
		if err != nil {
			uc.metrics.RecordError("sync")
			uc.log.Warn("sync failed",
				applogger.String("family", cfg.Family),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			res.Failed = append(res.Failed, symbol)
			continue
		}
		res.Stored[symbol] = len(candles)
	}
	uc.log.Info("candles synced",
		applogger.String("family", cfg.Family),
		applogger.Any("stored", res.Stored),
		applogger.Strings("failed", res.Failed),
	)
	return res, nil
}
