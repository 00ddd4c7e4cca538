package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	domsvc "FinFeat/internal/domain/service"
	"FinFeat/internal/services/features"
	"FinFeat/internal/services/labels"
	"FinFeat/internal/services/scaler"
	"FinFeat/internal/services/sequence"
	"FinFeat/pkg/config"
	applogger "FinFeat/pkg/logger"
)

var (
	ErrNoInstruments = errors.New("no usable instruments")
	ErrNoSamples     = errors.New("no labeled samples")
)

// Skip reasons reported to metrics.
const (
	SkipFetch               = "fetch_failed"
	SkipEmpty               = "empty"
	SkipInsufficientHistory = "insufficient_history"
	SkipExtract             = "extract_failed"
)

// BuildConfig is everything one family build needs. It is derived per
// family and lives for a single run.
type BuildConfig struct {
	RunID         string
	Family        string
	Type          string
	Scheme        string
	Timeframe     domrepo.Timeframe
	Instruments   []string
	Candles       int
	Window        int
	NumFeatures   int
	LabelKind     string
	Horizon       int
	Threshold     float64
	Calibration   string
	TestRatio     float64
	SplitSeed     int64
	Chronological bool
	MinCandles    int
	SkipWarmup    bool
}

// BuildConfigFor merges run-wide pipeline settings with one family.
func BuildConfigFor(p config.Pipeline, f config.Family) BuildConfig {
	typ := f.Type
	if typ == "" {
		typ = f.Name
	}
	return BuildConfig{
		Family:        f.Name,
		Type:          typ,
		Scheme:        f.Scheme,
		Timeframe:     domrepo.NormalizeTimeframe(f.Timeframe),
		Instruments:   append([]string(nil), f.Instruments...),
		Candles:       f.Candles,
		Window:        p.Window,
		NumFeatures:   p.NumFeatures,
		LabelKind:     f.Label.Kind,
		Horizon:       f.Label.Horizon,
		Threshold:     f.Label.Threshold,
		Calibration:   f.Calibration,
		TestRatio:     p.TestRatio,
		SplitSeed:     p.SplitSeed,
		Chronological: p.Chronological,
		MinCandles:    p.MinCandles,
		SkipWarmup:    p.SkipWarmup,
	}
}

// BuildConfigs derives a BuildConfig for every configured family.
func BuildConfigs(c *config.Config) []BuildConfig {
	out := make([]BuildConfig, 0, len(c.Families))
	for _, f := range c.Families {
		out = append(out, BuildConfigFor(c.Pipeline, f))
	}
	return out
}

func (c BuildConfig) validate() error {
	switch {
	case c.Family == "":
		return errors.New("family name required")
	case len(c.Instruments) == 0:
		return ErrNoInstruments
	case c.Window < 1:
		return fmt.Errorf("window must be >= 1, got %d", c.Window)
	case c.NumFeatures != features.NumFeatures:
		return fmt.Errorf("num_features %d, extractor emits %d", c.NumFeatures, features.NumFeatures)
	case c.TestRatio < 0 || c.TestRatio >= 1:
		return fmt.Errorf("test ratio %v out of [0,1)", c.TestRatio)
	}
	return nil
}

// BuildResult summarises one finished family build.
type BuildResult struct {
	RunID        string
	Family       string
	Instruments  []string
	Skipped      []string
	TrainSamples int
	TestSamples  int
	Distribution models.ClassDistribution
	ScalerPath   string
	MetadataPath string
	Metadata     models.ModelMetadata
	Duration     time.Duration
}

// DatasetBuilder runs fetch, extract, label, scale, split and persist for a family.
type DatasetBuilder struct {
	source     domrepo.CandleSource
	sourceName string
	registry   *features.Registry
	store      domrepo.ArtifactStore
	pub        domrepo.EventPublisher
	metrics    domrepo.Metrics
	log        *applogger.Logger
	workers    int
	now        func() time.Time
}

type BuilderOption func(*DatasetBuilder)

// WithWorkers bounds concurrent per-instrument fetch and extraction.
func WithWorkers(n int) BuilderOption {
	return func(b *DatasetBuilder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithSourceName labels fetched-candle metrics.
func WithSourceName(name string) BuilderOption {
	return func(b *DatasetBuilder) { b.sourceName = name }
}

// WithClock overrides the metadata timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *DatasetBuilder) { b.now = now }
}

// NewDatasetBuilder creates a new DatasetBuilder instance.
func NewDatasetBuilder(
	source domrepo.CandleSource,
	registry *features.Registry,
	store domrepo.ArtifactStore,
	pub domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	opts ...BuilderOption,
) *DatasetBuilder {
	if log == nil {
		log = applogger.Nop()
	}
	b := &DatasetBuilder{
		source:     source,
		sourceName: "candles",
		registry:   registry,
		store:      store,
		pub:        pub,
		metrics:    metrics,
		log:        log.With("dataset_builder"),
		workers:    4,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// instrumentSlot is written by exactly one worker.
type instrumentSlot struct {
	inst *models.InstrumentFeatures
	skip string
}

// Build produces and persists the dataset of one family.
func (b *DatasetBuilder) Build(ctx context.Context, cfg BuildConfig) (*BuildResult, error) {
	start := time.Now()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Family, err)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	log := b.log.WithString("family", cfg.Family)

	ext, err := b.registry.Extractor(cfg.Scheme)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Family, err)
	}
	policy, err := labels.New(cfg.LabelKind, cfg.Horizon, labels.WithThreshold(cfg.Threshold))
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Family, err)
	}
	var seqOpts []sequence.Option
	if cfg.SkipWarmup {
		seqOpts = append(seqOpts, sequence.WithStartOffset(ext.WarmUp()))
	}
	seq, err := sequence.NewBuilder(cfg.Window, policy, seqOpts...)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Family, err)
	}

	need := cfg.Window + cfg.Horizon + ext.WarmUp()
	need = max(need, seq.MinLength(), cfg.MinCandles)

	slots := make([]instrumentSlot, len(cfg.Instruments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, symbol := range cfg.Instruments {
		g.Go(func() error {
			slot, err := b.prepare(gctx, log, ext, cfg, symbol, need)
			if err != nil {
				return err
			}
			slots[i] = slot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.metrics.RecordError("build")
		return nil, fmt.Errorf("build %s: %w", cfg.Family, err)
	}

	var (
		insts   []models.InstrumentFeatures
		skipped []string
	)
	for i, s := range slots {
		if s.inst == nil {
			skipped = append(skipped, cfg.Instruments[i])
			b.metrics.RecordInstrumentSkipped(cfg.Family, s.skip)
			continue
		}
		insts = append(insts, *s.inst)
	}
	if len(insts) == 0 {
		b.metrics.RecordError("build")
		return nil, fmt.Errorf("build %s: %w", cfg.Family, ErrNoInstruments)
	}

	seqRes, err := seq.Build(insts)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Family, err)
	}
	for _, s := range seqRes.Skipped {
		skipped = append(skipped, s)
		b.metrics.RecordInstrumentSkipped(cfg.Family, SkipInsufficientHistory)
	}
	if len(seqRes.Samples) == 0 {
		b.metrics.RecordError("build")
		return nil, fmt.Errorf("build %s: %w", cfg.Family, ErrNoSamples)
	}
	used := make([]string, 0, len(insts))
	for _, inst := range insts {
		if seqRes.PerInstrument[inst.Symbol] > 0 {
			used = append(used, inst.Symbol)
		}
	}

	// the scaler is fitted once, after every instrument is windowed
	windows := make([][][]float64, len(seqRes.Samples))
	for i, s := range seqRes.Samples {
		windows[i] = s.Window
	}
	sc, err := scaler.FitWindows(windows)
	if err != nil {
		return nil, fmt.Errorf("build %s: fit scaler: %w", cfg.Family, err)
	}
	if sc.Width() != cfg.NumFeatures {
		return nil, fmt.Errorf("build %s: %w: scaler width %d", cfg.Family, features.ErrWidthMismatch, sc.Width())
	}
	for i, w := range windows {
		if windows[i], err = sc.TransformWindow(w); err != nil {
			return nil, fmt.Errorf("build %s: transform: %w", cfg.Family, err)
		}
	}

	trainIdx, testIdx := SplitIndices(len(windows), cfg.TestRatio, cfg.SplitSeed, cfg.Chronological)
	ds := &models.Dataset{
		XTrain: make([][][]float64, len(trainIdx)),
		YTrain: make([]models.Label, len(trainIdx)),
		XTest:  make([][][]float64, len(testIdx)),
		YTest:  make([]models.Label, len(testIdx)),
	}
	for k, i := range trainIdx {
		ds.XTrain[k], ds.YTrain[k] = windows[i], seqRes.Samples[i].Label
	}
	for k, i := range testIdx {
		ds.XTest[k], ds.YTest[k] = windows[i], seqRes.Samples[i].Label
	}

	scalerPath, err := b.store.SaveScaler(ctx, cfg.Family, sc.State())
	if err != nil {
		return nil, fmt.Errorf("build %s: save scaler: %w", cfg.Family, err)
	}
	if err := b.store.SaveDataset(ctx, cfg.Family, ds); err != nil {
		return nil, fmt.Errorf("build %s: save dataset: %w", cfg.Family, err)
	}

	md := models.ModelMetadata{
		Type:              cfg.Type,
		TrainedOn:         used,
		TrainSamples:      len(trainIdx),
		TestSamples:       len(testIdx),
		NumFeatures:       sc.Width(),
		NumClasses:        policy.NumClasses(),
		Calibration:       cfg.Calibration,
		ScalerPath:        scalerPath,
		Date:              b.now().UTC().Format(time.RFC3339),
		FeatureScheme:     ext.Scheme(),
		FeatureNames:      ext.Names(),
		SequenceLength:    cfg.Window,
		LabelPolicy:       describePolicy(policy),
		ClassDistribution: seqRes.Distribution,
		RunID:             cfg.RunID,
	}
	if cfg.Timeframe.Intraday() {
		md.Timeframe = string(cfg.Timeframe)
	} else {
		md.PredictionHorizon = fmt.Sprintf("%d day(s)", cfg.Horizon)
	}
	md.Warnings = QualityWarnings(md)

	mdPath, err := b.store.SaveMetadata(ctx, cfg.Family, md)
	if err != nil {
		return nil, fmt.Errorf("build %s: save metadata: %w", cfg.Family, err)
	}

	for i, n := range seqRes.Distribution.Counts {
		b.metrics.RecordSamples(cfg.Family, seqRes.Distribution.Names[i], n)
	}

	ev := models.DatasetBuilt{
		RunID:        cfg.RunID,
		Family:       cfg.Family,
		Scheme:       ext.Scheme(),
		Instruments:  used,
		Skipped:      skipped,
		TrainSamples: len(trainIdx),
		TestSamples:  len(testIdx),
		ScalerPath:   scalerPath,
		MetadataPath: mdPath,
		Timestamp:    b.now().UnixMilli(),
	}
	if err := b.pub.PublishBuilt(ctx, ev); err != nil {
		// artifacts are already on disk
		b.metrics.RecordError("publish")
		log.Warn("publish dataset event failed", applogger.String("run_id", cfg.RunID), applogger.Error(err))
	}

	elapsed := time.Since(start)
	b.metrics.RecordLatency("build", elapsed.Seconds())
	log.Info("dataset built",
		applogger.String("run_id", cfg.RunID),
		applogger.String("scheme", ext.Scheme()),
		applogger.String("label_policy", md.LabelPolicy),
		applogger.Strings("instruments", used),
		applogger.Strings("skipped", skipped),
		applogger.Int("train", len(trainIdx)),
		applogger.Int("test", len(testIdx)),
		applogger.Any("distribution", seqRes.Distribution),
		applogger.Duration("took", elapsed),
	)
	for _, w := range md.Warnings {
		log.Warn("dataset quality", applogger.String("warning", w))
	}

	return &BuildResult{
		RunID:        cfg.RunID,
		Family:       cfg.Family,
		Instruments:  used,
		Skipped:      skipped,
		TrainSamples: len(trainIdx),
		TestSamples:  len(testIdx),
		Distribution: seqRes.Distribution,
		ScalerPath:   scalerPath,
		MetadataPath: mdPath,
		Metadata:     md,
		Duration:     elapsed,
	}, nil
}

// prepare fetches and extracts one instrument. Only a scheme width
// violation or cancellation is returned as an error; everything else
// drops the instrument.
func (b *DatasetBuilder) prepare(
	ctx context.Context,
	log *applogger.Logger,
	ext *features.Extractor,
	cfg BuildConfig,
	symbol string,
	need int,
) (instrumentSlot, error) {
	fetchStart := time.Now()
	candles, err := b.source.GetLatestNCandles(ctx, symbol, cfg.Candles, cfg.Timeframe)
	b.metrics.RecordLatency("fetch", time.Since(fetchStart).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return instrumentSlot{}, ctxErr
		}
		log.Warn("fetch failed, dropping instrument", applogger.String("symbol", symbol), applogger.Error(err))
		return instrumentSlot{skip: SkipFetch}, nil
	}
	b.metrics.RecordCandlesFetched(b.sourceName, symbol, len(candles))
	if len(candles) == 0 {
		log.Warn("no candles, dropping instrument", applogger.String("symbol", symbol))
		return instrumentSlot{skip: SkipEmpty}, nil
	}
	if len(candles) < need {
		log.Warn("insufficient history, dropping instrument",
			applogger.String("symbol", symbol),
			applogger.Int("candles", len(candles)),
			applogger.Int("need", need),
		)
		return instrumentSlot{skip: SkipInsufficientHistory}, nil
	}

	m, err := ext.Extract(candles)
	if errors.Is(err, features.ErrWidthMismatch) {
		log.Error("feature scheme violated width", applogger.String("symbol", symbol), applogger.Error(err))
		return instrumentSlot{}, err
	}
	if err != nil {
		log.Warn("extract failed, dropping instrument", applogger.String("symbol", symbol), applogger.Error(err))
		return instrumentSlot{skip: SkipExtract}, nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return instrumentSlot{inst: &models.InstrumentFeatures{Symbol: symbol, Features: m, Closes: closes}}, nil
}

// BuildAll runs every config in order. A failed family is logged and
// does not stop the rest; the failures are joined.
func (b *DatasetBuilder) BuildAll(ctx context.Context, cfgs []BuildConfig) ([]*BuildResult, error) {
	var (
		out  []*BuildResult
		errs []error
	)
	for _, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := b.Build(ctx, cfg)
		if err != nil {
			b.log.Error("family build failed", applogger.String("family", cfg.Family), applogger.Error(err))
			errs = append(errs, err)
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// SplitIndices partitions [0,n) into train and test indices. The shuffled
// variant permutes with a seeded source and takes the first ceil(n*ratio)
// indices as test; the chronological one keeps the tail as test.
func SplitIndices(n int, ratio float64, seed int64, chronological bool) (train, test []int) {
	if n == 0 {
		return nil, nil
	}
	nTest := int(math.Ceil(float64(n) * ratio))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	if chronological {
		train = make([]int, 0, n-nTest)
		test = make([]int, 0, nTest)
		for i := 0; i < n; i++ {
			if i < n-nTest {
				train = append(train, i)
			} else {
				test = append(test, i)
			}
		}
		return train, test
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest]
}

func describePolicy(p domsvc.LabelPolicy) string {
	if s, ok := p.(fmt.Stringer); ok {
		return s.String()
	}
	return p.Kind()
}

// Quality thresholds flagged in metadata.
const (
	SuspiciousAccuracy = 0.95
	MaxClassShare      = 0.7
)

// QualityWarnings flags metadata that suggests leakage or class bias.
func QualityWarnings(md models.ModelMetadata) []string {
	var out []string
	if md.TestAccuracy > SuspiciousAccuracy {
		out = append(out, fmt.Sprintf("test accuracy %.4f above %.2f, check for leakage", md.TestAccuracy, SuspiciousAccuracy))
	}
	d := md.ClassDistribution
	for i, r := range d.Ratios {
		if r > MaxClassShare {
			name := fmt.Sprintf("class %d", i)
			if i < len(d.Names) {
				name = d.Names[i]
			}
			out = append(out, fmt.Sprintf("%s is %.1f%% of samples, model may be biased", name, r*100))
		}
	}
	return out
}
