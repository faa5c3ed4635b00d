package writer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/logfmt"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

const fileExt = ".txt"

// FileSink stores each ticker's records in <dir>/<TICKER>.txt, one record per
// line, appended in arrival order.
type FileSink struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]*os.File // open append handles by ticker
}

// NewFileSink creates the log directory if needed.
func NewFileSink(dir string, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &FileSink{
		dir:    dir,
		logger: logger,
		files:  make(map[string]*os.File),
	}, nil
}

// Path returns the log file of ticker.
func (s *FileSink) Path(ticker string) string {
	return filepath.Join(s.dir, ticker+fileExt)
}

// Append writes recs to the ticker's file.
func (s *FileSink) Append(ctx context.Context, ticker string, recs []model.AggregateRecord) error {
	if err := validTicker(ticker); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	for _, rec := range recs {
		b.WriteString(logfmt.FormatLine(rec))
		b.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.openLocked(ticker)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		// Drop the handle so the next attempt reopens the file.
		f.Close()
		delete(s.files, ticker)
		return fmt.Errorf("append %s: %w", ticker, err)
	}
	return nil
}

// Trim rewrites the ticker's file keeping the newest keep lines of g. Lines
// of other granularities and unparseable lines are left in place.
func (s *FileSink) Trim(ctx context.Context, ticker string, g model.Granularity, keep int) error {
	_, err := s.compact(ctx, ticker, func(lg model.Granularity) (int, bool) {
		return keep, lg == g
	})
	return err
}

// Compact applies keep to every granularity of ticker in a single rewrite
// and returns the number of lines removed.
func (s *FileSink) Compact(ctx context.Context, ticker string, keep int) (int, error) {
	return s.compact(ctx, ticker, func(model.Granularity) (int, bool) {
		return keep, true
	})
}

// Load parses the ticker's file. Malformed lines are skipped. Sequence
// numbers follow line order within each granularity.
func (s *FileSink) Load(ctx context.Context, ticker string) ([]model.AggregateRecord, error) {
	if err := validTicker(ticker); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLocked(ticker)
	if err != nil {
		return nil, err
	}

	var (
		recs    []model.AggregateRecord
		seqs    = map[model.Granularity]int64{}
		skipped int
	)
	for i, line := range lines {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, ok := logfmt.ParseLine(line)
		if !ok {
			skipped++
			continue
		}
		seqs[rec.Granularity]++
		rec.Seq = seqs[rec.Granularity]
		recs = append(recs, rec)
	}

	if skipped > 0 {
		s.logger.Warn("skipped malformed log lines", "ticker", ticker, "count", skipped)
	}
	return recs, nil
}

// Tickers lists tickers that have a log file, sorted.
func (s *FileSink) Tickers() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		tickers = append(tickers, strings.TrimSuffix(e.Name(), fileExt))
	}
	slices.Sort(tickers)
	return tickers, nil
}

// Close closes every open file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for ticker, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ticker, err))
		}
		delete(s.files, ticker)
	}
	return errors.Join(errs...)
}

// compact rewrites the ticker's file. limit reports, per granularity, how
// many of the newest lines to keep and whether the granularity is trimmed
// at all.
func (s *FileSink) compact(ctx context.Context, ticker string, limit func(model.Granularity) (int, bool)) (int, error) {
	if err := validTicker(ticker); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLocked(ticker)
	if err != nil || len(lines) == 0 {
		return 0, err
	}

	counts := map[model.Granularity]int{}
	for _, line := range lines {
		if g, ok := logfmt.Granularity(line); ok {
			counts[g]++
		}
	}

	// Walk forward; the first count-keep lines of a trimmed granularity go.
	toDrop := map[model.Granularity]int{}
	for g, n := range counts {
		if keep, ok := limit(g); ok {
			if keep < 0 {
				keep = 0
			}
			if n > keep {
				toDrop[g] = n - keep
			}
		}
	}
	if len(toDrop) == 0 {
		return 0, nil
	}

	kept := make([]string, 0, len(lines))
	removed := 0
	for _, line := range lines {
		if g, ok := logfmt.Granularity(line); ok && toDrop[g] > 0 {
			toDrop[g]--
			removed++
			continue
		}
		kept = append(kept, line)
	}

	if err := s.rewriteLocked(ticker, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// readLocked returns the lines of the ticker's file, or nil if it does not
// exist. Must be called with mu held.
func (s *FileSink) readLocked(ticker string) ([]string, error) {
	f, err := os.Open(s.Path(ticker))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ticker, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ticker, err)
	}
	return lines, nil
}

// rewriteLocked replaces the ticker's file atomically. Must be called with
// mu held.
func (s *FileSink) rewriteLocked(ticker string, lines []string) error {
	if f, ok := s.files[ticker]; ok {
		f.Close()
		delete(s.files, ticker)
	}

	tmp, err := os.CreateTemp(s.dir, ticker+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.Path(ticker)); err != nil {
		return fmt.Errorf("replace %s: %w", ticker, err)
	}
	return nil
}

// openLocked returns the cached append handle. Must be called with mu held.
func (s *FileSink) openLocked(ticker string) (*os.File, error) {
	if f, ok := s.files[ticker]; ok {
		return f, nil
	}
	f, err := os.OpenFile(s.Path(ticker), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ticker, err)
	}
	s.files[ticker] = f
	return f, nil
}

func validTicker(ticker string) error {
	if ticker == "" || ticker == "." || ticker == ".." || strings.ContainsAny(ticker, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidTicker, ticker)
	}
	return nil
}
