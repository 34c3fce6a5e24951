package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"BarLedger/internal/model"

	"golang.org/x/time/rate"
)

const (
	DefaultEastMoneyKlineURL = "https://push2his.eastmoney.com"
	DefaultEastMoneyQuoteURL = "https://push2.eastmoney.com"
	DefaultEastMoneyPriority = 1
)

// kline CSV columns, in fields2=f51..f61 order.
var eastMoneyKlineFields = []string{"date", "open", "close", "high", "low", "volume", "amount", "amplitude", "pct_chg", "change", "turnover"}

var eastMoneyDailyMapping = Mapping{
	Columns: map[string]string{
		"open":    "open",
		"high":    "high",
		"low":     "low",
		"close":   "close",
		"volume":  "volume",
		"amount":  "amount",
		"pct_chg": "pct_chg",
	},
	DateColumn:  "date",
	DateLayout:  model.DateLayout,
	VolumeScale: 100, // lots
	AmountScale: 1,
}

var eastMoneyBasicMapping = Mapping{
	Columns:    map[string]string{"turnover": "turnover_rate"},
	DateColumn: "date",
	DateLayout: model.DateLayout,
}

// EastMoneyOptions configures the keyless EastMoney adapter.
type EastMoneyOptions struct {
	Common
	KlineURL string
	QuoteURL string
	// RequestsPerSecond paces requests on top of the per-minute quota.
	RequestsPerSecond float64
	// Basic merges the per-bar turnover rate as fundamentals.
	Basic bool
}

// EastMoneyFetcher reads the public EastMoney quote endpoints. It needs no
// credentials and is always available.
type EastMoneyFetcher struct {
	base
	klineURL string
	quoteURL string
	limiter  *rate.Limiter
	basic    bool
}

// NewEastMoneyFetcher builds the adapter.
func NewEastMoneyFetcher(opts EastMoneyOptions) *EastMoneyFetcher {
	if opts.Priority == 0 {
		opts.Priority = DefaultEastMoneyPriority
	}
	if opts.KlineURL == "" {
		opts.KlineURL = DefaultEastMoneyKlineURL
	}
	if opts.QuoteURL == "" {
		opts.QuoteURL = DefaultEastMoneyQuoteURL
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &EastMoneyFetcher{
		base:     newBase("eastmoney", opts.Common),
		klineURL: strings.TrimRight(opts.KlineURL, "/"),
		quoteURL: strings.TrimRight(opts.QuoteURL, "/"),
		limiter:  rate.NewLimiter(limit, 1),
		basic:    opts.Basic,
	}
}

func (f *EastMoneyFetcher) Available() bool { return true }

type eastMoneyKlineResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

func (r *eastMoneyKlineResponse) returnCode() int { return r.RC }
func (r *eastMoneyQuoteResponse) returnCode() int { return r.RC }
func (r *eastMoneyListResponse) returnCode() int  { return r.RC }

// get fetches endpoint into out. A non-zero rc in the body is a refusal.
func (f *EastMoneyFetcher) get(ctx context.Context, op, endpoint string, q url.Values, out interface{ returnCode() int }) error {
	return f.call(ctx, op, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		if err := doJSON(f.client, req, out); err != nil {
			return err
		}
		if rc := out.returnCode(); rc != 0 {
			return &APIError{Code: rc, Msg: "eastmoney " + op + " refused"}
		}
		return nil
	})
}

func (f *EastMoneyFetcher) klines(ctx context.Context, code string, start, end time.Time) (RawFrame, error) {
	q := url.Values{}
	q.Set("secid", EastMoneySecID(code, f.log))
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61")
	q.Set("klt", "101")
	q.Set("fqt", "1")
	q.Set("beg", start.Format(tushareDateLayout))
	q.Set("end", end.Format(tushareDateLayout))

	var resp eastMoneyKlineResponse
	if err := f.get(ctx, "kline", f.klineURL+"/api/qt/stock/kline/get", q, &resp); err != nil {
		return RawFrame{}, err
	}
	frame := RawFrame{Fields: eastMoneyKlineFields}
	if resp.Data == nil {
		return frame, nil
	}
	f.names.put(code, resp.Data.Name)
	for _, line := range resp.Data.Klines {
		parts := strings.Split(line, ",")
		row := make([]any, len(parts))
		for i, p := range parts {
			row[i] = p
		}
		frame.Items = append(frame.Items, row)
	}
	return frame, nil
}

// FetchDaily returns daily bars from the kline endpoint.
func (f *EastMoneyFetcher) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyBar, error) {
	frame, err := f.klines(ctx, code, start, end)
	if err != nil {
		return nil, err
	}
	bars, err := Normalize(code, frame, eastMoneyDailyMapping)
	if err != nil {
		return nil, f.fail("kline", KindFetchFailed, err)
	}
	if f.basic && len(bars) > 0 {
		funds, err := NormalizeFundamentals(frame, eastMoneyBasicMapping)
		if err != nil {
			f.log.WithError(err).WithField("code", code).Warn("turnover unavailable, storing bars without fundamentals")
			return bars, nil
		}
		MergeFundamentals(bars, funds)
	}
	return bars, nil
}

type eastMoneyQuoteResponse struct {
	RC   int            `json:"rc"`
	Data map[string]any `json:"data"`
}

// FetchRealtimeQuote returns a one-shot snapshot.
func (f *EastMoneyFetcher) FetchRealtimeQuote(ctx context.Context, code string) (*model.Quote, error) {
	q := url.Values{}
	q.Set("secid", EastMoneySecID(code, f.log))
	q.Set("fields", "f43,f44,f45,f46,f47,f48,f57,f58,f60,f170")
	q.Set("fltt", "2")

	var resp eastMoneyQuoteResponse
	if err := f.get(ctx, "quote", f.quoteURL+"/api/qt/stock/get", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, f.fail("quote", KindFetchFailed, fmt.Errorf("no quote for %s", code))
	}
	num := func(k string) float64 { return ParseNumber(resp.Data[k]).ValueOrZero() }
	name, _ := resp.Data["f58"].(string)
	f.names.put(code, name)
	return &model.Quote{
		Code:     BareCode(code),
		Name:     name,
		Price:    num("f43"),
		High:     num("f44"),
		Low:      num("f45"),
		Open:     num("f46"),
		Volume:   num("f47") * 100,
		Amount:   num("f48"),
		PreClose: num("f60"),
		PctChg:   num("f170"),
		Time:     f.now(),
	}, nil
}

// FetchName resolves a name via the quote endpoint, cached for the process.
func (f *EastMoneyFetcher) FetchName(ctx context.Context, code string) (string, error) {
	if name, ok := f.names.get(code); ok {
		return name, nil
	}
	quote, err := f.FetchRealtimeQuote(ctx, code)
	if err != nil {
		return "", err
	}
	if quote.Name == "" {
		return "", f.fail("quote", KindFetchFailed, fmt.Errorf("no name for %s", code))
	}
	return quote.Name, nil
}

type eastMoneyListResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Total int `json:"total"`
		Diff  []struct {
			Code string `json:"f12"`
			Name string `json:"f14"`
		} `json:"diff"`
	} `json:"data"`
}

// FetchList returns all Shanghai and Shenzhen A-shares and seeds the name cache.
func (f *EastMoneyFetcher) FetchList(ctx context.Context) ([]model.SecurityInfo, error) {
	q := url.Values{}
	q.Set("pn", "1")
	q.Set("pz", "6000")
	q.Set("po", "1")
	q.Set("np", "1")
	q.Set("fltt", "2")
	q.Set("fid", "f12")
	q.Set("fs", "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23")
	q.Set("fields", "f12,f14")

	var resp eastMoneyListResponse
	if err := f.get(ctx, "list", f.quoteURL+"/api/qt/clist/get", q, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}
	out := make([]model.SecurityInfo, 0, len(resp.Data.Diff))
	for _, d := range resp.Data.Diff {
		ex, _ := ExchangeOf(d.Code)
		out = append(out, model.SecurityInfo{Code: d.Code, Name: d.Name, Market: string(ex)})
		f.names.put(d.Code, d.Name)
	}
	return out, nil
}
