package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"BarLedger/internal/model"
)

const (
	DefaultTushareURL       = "http://api.tushare.pro"
	DefaultTushareRateLimit = 80
	DefaultTusharePriority  = 2
	tushareDateLayout       = "20060102"
)

var tushareDailyMapping = Mapping{
	Columns: map[string]string{
		"open":    "open",
		"high":    "high",
		"low":     "low",
		"close":   "close",
		"vol":     "volume",
		"amount":  "amount",
		"pct_chg": "pct_chg",
	},
	DateColumn:  "trade_date",
	DateLayout:  tushareDateLayout,
	VolumeScale: 100,  // lots
	AmountScale: 1000, // thousands
}

var tushareBasicMapping = Mapping{
	Columns: map[string]string{
		"turnover_rate": "turnover_rate",
		"volume_ratio":  "volume_ratio_basic",
		"pe":            "pe",
		"pb":            "pb",
		"total_mv":      "total_mv",
		"circ_mv":       "circ_mv",
	},
	DateColumn: "trade_date",
	DateLayout: tushareDateLayout,
}

// TushareOptions configures the Tushare Pro adapter.
type TushareOptions struct {
	Common
	Token   string
	BaseURL string
	// Verify makes one live calendar call at construction; success promotes
	// the adapter to priority 0.
	Verify bool
	// Basic enables the daily_basic merge.
	Basic bool
}

// TushareFetcher reads the token-authenticated Tushare Pro HTTP API.
type TushareFetcher struct {
	base
	token   string
	baseURL string
	basic   bool

	calMu    sync.Mutex
	calAsOf  time.Time
	calCache model.TradeStatus
}

// NewTushareFetcher builds the adapter. With a token and Verify set it issues
// one trade-calendar call; the outcome fixes the priority for the process.
func NewTushareFetcher(ctx context.Context, opts TushareOptions) *TushareFetcher {
	if opts.RateLimit == 0 {
		opts.RateLimit = DefaultTushareRateLimit
	}
	if opts.Priority == 0 {
		opts.Priority = DefaultTusharePriority
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultTushareURL
	}
	f := &TushareFetcher{
		base:    newBase("tushare", opts.Common),
		token:   opts.Token,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		basic:   opts.Basic,
	}
	if f.Available() && opts.Verify {
		if _, err := f.TradeStatus(ctx); err != nil {
			f.log.WithError(err).Warn("tushare token check failed, keeping default priority")
		} else {
			f.priority = 0
			f.log.Info("tushare token verified, promoted to primary")
		}
	}
	return f
}

func (f *TushareFetcher) Available() bool { return f.token != "" }

type tushareRequest struct {
	APIName string         `json:"api_name"`
	Token   string         `json:"token"`
	Params  map[string]any `json:"params"`
	Fields  string         `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// query calls one Tushare API and returns its table.
func (f *TushareFetcher) query(ctx context.Context, api string, params map[string]any, fields []string) (RawFrame, error) {
	if !f.Available() {
		return RawFrame{}, f.notConfigured(api)
	}
	payload, err := json.Marshal(tushareRequest{
		APIName: api,
		Token:   f.token,
		Params:  params,
		Fields:  strings.Join(fields, ","),
	})
	if err != nil {
		return RawFrame{}, fmt.Errorf("marshal %s request: %w", api, err)
	}

	var frame RawFrame
	err = f.call(ctx, api, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		var resp tushareResponse
		if err := doJSON(f.client, req, &resp); err != nil {
			return err
		}
		if resp.Code != 0 {
			return &APIError{Code: resp.Code, Msg: resp.Msg}
		}
		frame = RawFrame{}
		if resp.Data != nil {
			frame = RawFrame{Fields: resp.Data.Fields, Items: resp.Data.Items}
		}
		return nil
	})
	return frame, err
}

// FetchDaily returns daily bars, merged with daily_basic when enabled. A
// fundamentals failure is logged and the bars are returned unflagged.
func (f *TushareFetcher) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]model.DailyBar, error) {
	if !f.Available() {
		return nil, f.notConfigured("daily")
	}
	tsCode := TushareCode(code, f.log)
	frame, err := f.query(ctx, "daily", map[string]any{
		"ts_code":    tsCode,
		"start_date": start.Format(tushareDateLayout),
		"end_date":   end.Format(tushareDateLayout),
	}, []string{"ts_code", "trade_date", "open", "high", "low", "close", "pre_close", "change", "pct_chg", "vol", "amount"})
	if err != nil {
		return nil, err
	}
	bars, err := Normalize(code, frame, tushareDailyMapping)
	if err != nil {
		return nil, f.fail("daily", KindFetchFailed, err)
	}
	if len(bars) == 0 || !f.basic {
		return bars, nil
	}

	funds, err := f.FetchBasic(ctx, code, start, end)
	if err != nil {
		f.log.WithError(err).WithField("code", code).Warn("daily_basic unavailable, storing bars without fundamentals")
		return bars, nil
	}
	MergeFundamentals(bars, funds)
	return bars, nil
}

// FetchBasic returns daily_basic rows for code.
func (f *TushareFetcher) FetchBasic(ctx context.Context, code string, start, end time.Time) ([]model.Fundamentals, error) {
	frame, err := f.query(ctx, "daily_basic", map[string]any{
		"ts_code":    TushareCode(code, f.log),
		"start_date": start.Format(tushareDateLayout),
		"end_date":   end.Format(tushareDateLayout),
	}, []string{"ts_code", "trade_date", "turnover_rate", "volume_ratio", "pe", "pb", "total_mv", "circ_mv"})
	if err != nil {
		return nil, err
	}
	funds, err := NormalizeFundamentals(frame, tushareBasicMapping)
	if err != nil {
		return nil, f.fail("daily_basic", KindFetchFailed, err)
	}
	return funds, nil
}

// TradeStatus returns the latest open day on or before today, cached per day.
// With no calendar data it assumes today is a trading day.
func (f *TushareFetcher) TradeStatus(ctx context.Context) (model.TradeStatus, error) {
	today := model.Day(f.now())

	f.calMu.Lock()
	if f.calAsOf.Equal(today) {
		st := f.calCache
		f.calMu.Unlock()
		return st, nil
	}
	f.calMu.Unlock()

	frame, err := f.query(ctx, "trade_cal", map[string]any{
		"exchange":   "SSE",
		"start_date": today.AddDate(0, 0, -30).Format(tushareDateLayout),
		"end_date":   today.Format(tushareDateLayout),
		"is_open":    "1",
	}, []string{"cal_date", "is_open"})
	if err != nil {
		return model.TradeStatus{}, err
	}

	st := model.TradeStatus{LatestTradeDate: today, IsTradeDayToday: true}
	if frame.Len() > 0 {
		var latest time.Time
		isToday := false
		dateIdx, openIdx := columnIndex(frame, "cal_date"), columnIndex(frame, "is_open")
		for _, row := range frame.Items {
			if dateIdx < 0 {
				break
			}
			if openIdx >= 0 && ParseNumber(row[openIdx]).ValueOrZero() != 1 {
				continue
			}
			day, err := parseDay(row[dateIdx], tushareDateLayout)
			if err != nil || day.After(today) {
				continue
			}
			if day.After(latest) {
				latest = day
			}
			if day.Equal(today) {
				isToday = true
			}
		}
		if !latest.IsZero() {
			st = model.TradeStatus{LatestTradeDate: latest, IsTradeDayToday: isToday}
		}
	}

	f.calMu.Lock()
	f.calAsOf, f.calCache = today, st
	f.calMu.Unlock()
	return st, nil
}

// FetchName resolves a security name, cached for the process.
func (f *TushareFetcher) FetchName(ctx context.Context, code string) (string, error) {
	if name, ok := f.names.get(code); ok {
		return name, nil
	}
	frame, err := f.query(ctx, "stock_basic", map[string]any{
		"ts_code": TushareCode(code, f.log),
	}, []string{"ts_code", "name"})
	if err != nil {
		return "", err
	}
	i := columnIndex(frame, "name")
	if i < 0 || frame.Len() == 0 {
		return "", f.fail("stock_basic", KindFetchFailed, fmt.Errorf("no name for %s", code))
	}
	name := fmt.Sprint(frame.Items[0][i])
	f.names.put(code, name)
	return name, nil
}

// FetchList returns all listed securities and seeds the name cache.
func (f *TushareFetcher) FetchList(ctx context.Context) ([]model.SecurityInfo, error) {
	fields := []string{"ts_code", "name", "industry", "area", "market"}
	frame, err := f.query(ctx, "stock_basic", map[string]any{"list_status": "L"}, fields)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(fields))
	for i, name := range fields {
		idx[i] = columnIndex(frame, name)
	}
	if idx[0] < 0 {
		return nil, f.fail("stock_basic", KindFetchFailed, errors.New("ts_code column missing"))
	}
	cell := func(row []any, i int) string {
		if i < 0 || i >= len(row) || row[i] == nil {
			return ""
		}
		return fmt.Sprint(row[i])
	}
	out := make([]model.SecurityInfo, 0, frame.Len())
	for _, row := range frame.Items {
		info := model.SecurityInfo{
			Code:     BareCode(cell(row, idx[0])),
			Name:     cell(row, idx[1]),
			Industry: cell(row, idx[2]),
			Area:     cell(row, idx[3]),
			Market:   cell(row, idx[4]),
		}
		f.names.put(info.Code, info.Name)
		out = append(out, info)
	}
	return out, nil
}

// FetchRealtimeQuote is not offered by Tushare.
func (f *TushareFetcher) FetchRealtimeQuote(context.Context, string) (*model.Quote, error) {
	return nil, f.unsupported("realtime_quote")
}

func columnIndex(frame RawFrame, name string) int {
	for i, f := range frame.Fields {
		if f == name {
			return i
		}
	}
	return -1
}
