package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"BarLedger/internal/model"

	"github.com/guregu/null/v6"
)

const (
	DefaultYahooURL      = "https://query1.finance.yahoo.com"
	DefaultYahooPriority = 4
)

var yahooDailyMapping = Mapping{
	Columns: map[string]string{
		"open":   "open",
		"high":   "high",
		"low":    "low",
		"close":  "close",
		"volume": "volume",
	},
	DateColumn:  "date",
	DateLayout:  model.DateLayout,
	VolumeScale: 1, // shares
}

// YahooOptions configures the Yahoo Finance adapter.
type YahooOptions struct {
	Common
	BaseURL string
}

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	base
	baseURL string
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(opts YahooOptions) *YahooFetcher {
	if opts.Priority == 0 {
		opts.Priority = DefaultYahooPriority
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultYahooURL
	}
	return &YahooFetcher{
		base:    newBase("yahoo", opts.Common),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

func (f *YahooFetcher) Available() bool { return true }

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string `json:"symbol"`
				ShortName          string `json:"shortName"`
				LongName           string `json:"longName"`
				GMTOffset          int64  `json:"gmtoffset"`
				RegularMarketPrice any    `json:"regularMarketPrice"`
				RegularMarketTime  int64  `json:"regularMarketTime"`
				ChartPreviousClose any    `json:"chartPreviousClose"`
				DayHigh            any    `json:"regularMarketDayHigh"`
				DayLow             any    `json:"regularMarketDayLow"`
				Volume             any    `json:"regularMarketVolume"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []any `json:"open"`
					High   []any `json:"high"`
					Low    []any `json:"low"`
					Close  []any `json:"close"`
					Volume []any `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *YahooFetcher) fetchChart(ctx context.Context, code string, q url.Values) (*yahooChart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.baseURL, url.PathEscape(YahooSymbol(code, f.log)), q.Encode())
	var chart yahooChart
	err := f.call(ctx, "chart", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		chart = yahooChart{}
		return doJSON(f.client, req, &chart)
	})
	if err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, f.fail("chart", KindFetchFailed, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 {
		return nil, f.fail("chart", KindFetchFailed, fmt.Errorf("yahoo: no data returned for %s", code))
	}
	return &chart, nil
}

// FetchDaily returns daily bars. Yahoo reports volume in shares and no amount.
func (f *YahooFetcher) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyBar, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	chart, err := f.fetchChart(ctx, code, q)
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if name := result.Meta.LongName; name != "" {
		f.names.put(code, name)
	}
	frame := RawFrame{Fields: []string{"date", "open", "high", "low", "close", "volume"}}
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]
	at := func(s []any, i int) any {
		if i < len(s) {
			return s[i]
		}
		return nil
	}
	for i, ts := range result.Timestamp {
		c := at(quote.Close, i)
		if c == nil {
			continue // holidays and suspensions come back as null bars
		}
		local := time.Unix(ts+result.Meta.GMTOffset, 0).UTC()
		frame.Items = append(frame.Items, []any{
			local.Format(model.DateLayout),
			at(quote.Open, i), at(quote.High, i), at(quote.Low, i), c, at(quote.Volume, i),
		})
	}
	bars, err := Normalize(code, frame, yahooDailyMapping)
	if err != nil {
		return nil, f.fail("chart", KindFetchFailed, err)
	}
	fillPctChg(bars)
	return trimRange(bars, start, end), nil
}

// FetchRealtimeQuote builds a snapshot from the chart metadata.
func (f *YahooFetcher) FetchRealtimeQuote(ctx context.Context, code string) (*model.Quote, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", "1d")
	chart, err := f.fetchChart(ctx, code, q)
	if err != nil {
		return nil, err
	}
	meta := chart.Chart.Result[0].Meta
	price := ParseNumber(meta.RegularMarketPrice)
	if !price.Valid {
		return nil, f.fail("chart", KindFetchFailed, fmt.Errorf("yahoo: no price for %s", code))
	}
	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}
	f.names.put(code, name)
	prev := ParseNumber(meta.ChartPreviousClose).ValueOrZero()
	quote := &model.Quote{
		Code:     BareCode(code),
		Name:     name,
		Price:    price.Float64,
		High:     ParseNumber(meta.DayHigh).ValueOrZero(),
		Low:      ParseNumber(meta.DayLow).ValueOrZero(),
		Volume:   ParseNumber(meta.Volume).ValueOrZero(),
		PreClose: prev,
		Time:     time.Unix(meta.RegularMarketTime, 0),
	}
	if prev > 0 {
		quote.PctChg = (price.Float64 - prev) / prev * 100
	}
	return quote, nil
}

// FetchName resolves a name from chart metadata, cached for the process.
func (f *YahooFetcher) FetchName(ctx context.Context, code string) (string, error) {
	if name, ok := f.names.get(code); ok {
		return name, nil
	}
	quote, err := f.FetchRealtimeQuote(ctx, code)
	if err != nil {
		return "", err
	}
	if quote.Name == "" {
		return "", f.fail("chart", KindFetchFailed, fmt.Errorf("no name for %s", code))
	}
	return quote.Name, nil
}

// FetchList is not offered by Yahoo.
func (f *YahooFetcher) FetchList(context.Context) ([]model.SecurityInfo, error) {
	return nil, f.unsupported("list")
}

// fillPctChg derives percent change from consecutive closes; the first bar stays missing.
func fillPctChg(bars []model.DailyBar) {
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Close, bars[i].Close
		if prev.Valid && cur.Valid && prev.Float64 > 0 && !bars[i].PctChg.Valid {
			bars[i].PctChg = null.FloatFrom((cur.Float64 - prev.Float64) / prev.Float64 * 100)
		}
	}
}

func trimRange(bars []model.DailyBar, start, end time.Time) []model.DailyBar {
	start, end = model.Day(start), model.Day(end)
	out := bars[:0]
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
