package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadnexus/subiq/internal/model"
	"github.com/leadnexus/subiq/internal/resilience"
	"github.com/leadnexus/subiq/internal/store"
)

// feedColumns is the canonical header of the daily fact feed.
var feedColumns = []string{
	"date", "vertical", "traffic_type", "tier", "subid",
	"calls", "paid_calls", "qual_paid_calls", "leads", "transfer_count", "clicks", "redirects",
	"call_rev", "lead_rev", "click_rev", "redirect_rev", "total_rev",
}

const batchSize = 1000

// ParseFeed reads a daily fact CSV. Rows that fail validation are
// skipped and counted rather than aborting the whole file.
func ParseFeed(r io.Reader) ([]model.RawFactRow, int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, eris.Wrap(err, "ingest: read header")
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, 0, err
	}

	var facts []model.RawFactRow
	skipped := 0
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: read line %d", line)
		}

		fact, err := parseRecord(record, idx)
		if err != nil {
			zap.L().Warn("ingest: skipping bad row", zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		if err := fact.Validate(); err != nil {
			zap.L().Warn("ingest: skipping invalid row", zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		facts = append(facts, fact)
	}
	return facts, skipped, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range feedColumns {
		if _, ok := idx[want]; !ok {
			return nil, eris.Errorf("ingest: missing column %q", want)
		}
	}
	return idx, nil
}

func parseRecord(record []string, idx map[string]int) (model.RawFactRow, error) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var fact model.RawFactRow
	var err error

	if fact.Date, err = time.Parse("2006-01-02", field("date")); err != nil {
		return fact, eris.Wrap(err, "ingest: parse date")
	}
	if fact.Vertical, err = model.ParseVertical(field("vertical")); err != nil {
		return fact, err
	}
	if fact.TrafficType, err = model.ParseTrafficType(field("traffic_type")); err != nil {
		return fact, err
	}
	if fact.Tier, err = model.ParseChannel(field("tier")); err != nil {
		return fact, err
	}
	fact.SubID = field("subid")
	if fact.SubID == "" {
		return fact, eris.New("ingest: empty subid")
	}

	counts := []struct {
		name string
		dst  *int64
	}{
		{"calls", &fact.Calls},
		{"paid_calls", &fact.PaidCalls},
		{"qual_paid_calls", &fact.QualPaidCalls},
		{"leads", &fact.Leads},
		{"transfer_count", &fact.TransferCount},
		{"clicks", &fact.Clicks},
		{"redirects", &fact.Redirects},
	}
	for _, c := range counts {
		if *c.dst, err = parseCount(field(c.name)); err != nil {
			return fact, eris.Wrapf(err, "ingest: parse %s", c.name)
		}
	}

	revenues := []struct {
		name string
		dst  *float64
	}{
		{"call_rev", &fact.CallRev},
		{"lead_rev", &fact.LeadRev},
		{"click_rev", &fact.ClickRev},
		{"redirect_rev", &fact.RedirectRev},
		{"total_rev", &fact.TotalRev},
	}
	for _, r := range revenues {
		if *r.dst, err = parseRevenue(field(r.name)); err != nil {
			return fact, eris.Wrapf(err, "ingest: parse %s", r.name)
		}
	}
	return fact, nil
}

func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseRevenue(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

// ImportFile parses a feed file and upserts its rows in batches.
func ImportFile(ctx context.Context, st store.Store, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	facts, skipped, err := ParseFeed(f)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		zap.L().Warn("ingest: rows skipped", zap.String("file", path), zap.Int("skipped", skipped))
	}

	var total int64
	for start := 0; start < len(facts); start += batchSize {
		end := start + batchSize
		if end > len(facts) {
			end = len(facts)
		}
		batch := facts[start:end]

		n, err := resilience.DoVal(ctx, resilience.RetryConfig{
			OnRetry: resilience.LogRetries("upsert facts"),
		}, func(ctx context.Context) (int64, error) {
			return st.UpsertFacts(ctx, batch)
		})
		if err != nil {
			return total, eris.Wrapf(err, "ingest: upsert batch at row %d", start)
		}
		total += n
	}

	zap.L().Info("ingest: file imported",
		zap.String("file", path),
		zap.Int64("rows", total),
		zap.Int("skipped", skipped))
	return total, nil
}
