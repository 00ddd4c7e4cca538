package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	xutil "FinFeat/pkg/util"

	"github.com/tidwall/gjson"
)

var ErrNoCandleFile = errors.New("candle file not found")

// FileCandleStore reads and writes {dir}/{SYMBOL}_{tf}.json candle files.
// Files hold either exported candle objects ({"t","o","h","l","c","v"}) or raw
// exchange kline rows ([openTime,"open","high","low","close","volume",...]).
type FileCandleStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileCandleStore(dir string) *FileCandleStore {
	return &FileCandleStore{dir: dir}
}

func (s *FileCandleStore) path(symbol string, tf domrepo.Timeframe) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", strings.ToUpper(symbol), tf))
}

func (s *FileCandleStore) load(symbol string, tf domrepo.Timeframe) ([]models.Candle, error) {
	b, err := os.ReadFile(s.path(symbol, tf))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s %s", ErrNoCandleFile, symbol, tf)
	}
	if err != nil {
		return nil, err
	}
	return parseCandleFile(symbol, b)
}

func (s *FileCandleStore) GetCandles(_ context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	all, err := s.load(symbol, tf)
	if err != nil {
		return nil, err
	}
	lo := sort.Search(len(all), func(i int) bool { return !all[i].Bucket.Before(from) })
	hi := sort.Search(len(all), func(i int) bool { return all[i].Bucket.After(to) })
	if lo >= hi {
		return nil, nil
	}
	return all[lo:hi], nil
}

func (s *FileCandleStore) GetLatestNCandles(_ context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	all, err := s.load(symbol, tf)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// StoreCandles merges candles into the per-symbol files; newer values win on equal open time.
func (s *FileCandleStore) StoreCandles(_ context.Context, tf domrepo.Timeframe, candles []models.Candle) error {
	bySymbol := make(map[string][]models.Candle)
	for _, c := range candles {
		if c.Symbol == "" || c.Validate() != nil {
			continue
		}
		bySymbol[c.Symbol] = append(bySymbol[c.Symbol], c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, fresh := range bySymbol {
		existing, err := s.load(symbol, tf)
		if err != nil && !errors.Is(err, ErrNoCandleFile) {
			return err
		}
		merged := mergeCandles(existing, fresh)
		err = xutil.WriteFileAtomic(s.path(symbol, tf), func(w io.Writer) error {
			return json.NewEncoder(w).Encode(merged)
		})
		if err != nil {
			return fmt.Errorf("store candles %s: %w", symbol, err)
		}
	}
	return nil
}

func mergeCandles(existing, fresh []models.Candle) []models.Candle {
	byTime := make(map[int64]models.Candle, len(existing)+len(fresh))
	for _, c := range existing {
		byTime[c.Bucket.UnixMilli()] = c
	}
	for _, c := range fresh {
		byTime[c.Bucket.UnixMilli()] = c
	}
	out := make([]models.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out
}

func parseCandleFile(symbol string, b []byte) ([]models.Candle, error) {
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("candle file %s: invalid json", symbol)
	}
	root := gjson.ParseBytes(b)
	if !root.IsArray() {
		return nil, fmt.Errorf("candle file %s: expected array", symbol)
	}
	rows := root.Array()
	out := make([]models.Candle, 0, len(rows))
	for i, r := range rows {
		c, err := parseCandleRow(symbol, r)
		if err != nil {
			return nil, fmt.Errorf("candle file %s row %d: %w", symbol, i, err)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}

func parseCandleRow(symbol string, r gjson.Result) (models.Candle, error) {
	var ts gjson.Result
	var vals [5]gjson.Result
	switch {
	case r.IsArray():
		f := r.Array()
		if len(f) < 6 {
			return models.Candle{}, fmt.Errorf("expected 6 fields, got %d", len(f))
		}
		ts = f[0]
		copy(vals[:], f[1:6])
	case r.IsObject():
		ts = r.Get("t")
		for i, k := range [...]string{"o", "h", "l", "c", "v"} {
			vals[i] = r.Get(k)
		}
	default:
		return models.Candle{}, fmt.Errorf("unexpected %s", r.Type)
	}

	t, ok := xutil.ParseTime(ts.String())
	if !ok {
		return models.Candle{}, fmt.Errorf("bad timestamp %q", ts.Raw)
	}
	c := models.Candle{Bucket: t.UTC(), Symbol: symbol}
	for i, dst := range [...]*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		if !vals[i].Exists() {
			return models.Candle{}, fmt.Errorf("missing field %d", i)
		}
		*dst = vals[i].Float()
	}
	return c, c.Validate()
}

var (
	_ domrepo.CandleSource = (*FileCandleStore)(nil)
	_ domrepo.CandleSink   = (*FileCandleStore)(nil)
)
