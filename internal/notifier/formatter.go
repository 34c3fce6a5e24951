package notifier

import (
	"fmt"
	"strings"
	"time"

	"BarLedger/internal/ingest"
	"BarLedger/internal/model"
)

// maxListedFailures caps the failures spelled out in one message.
const maxListedFailures = 20

// FormatBatchReport formats an ingest run into a Telegram message.
func FormatBatchReport(r *ingest.BatchReport) string {
	var b strings.Builder

	icon := "✅"
	if len(r.Failed) > 0 {
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s <b>BarLedger 日线入库</b> | %s\n\n", icon, r.Started.Format("2006-01-02 15:04")))

	inserted, updated := 0, 0
	for _, s := range r.Succeeded {
		inserted += s.Inserted
		updated += s.Updated
	}
	b.WriteString(fmt.Sprintf("成功: %d | 跳过: %d | 失败: %d\n", len(r.Succeeded), len(r.Skipped), len(r.Failed)))
	b.WriteString(fmt.Sprintf("新增: %d | 更新: %d\n", inserted, updated))
	b.WriteString(fmt.Sprintf("耗时: %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond)))

	if len(r.Failed) > 0 {
		b.WriteString("\n❌ <b>失败列表:</b>\n")
		for i, f := range r.Failed {
			if i == maxListedFailures {
				b.WriteString(fmt.Sprintf("  …另有 %d 只\n", len(r.Failed)-maxListedFailures))
				break
			}
			b.WriteString(fmt.Sprintf("  %s: %s\n", f.Code, escape(f.Reason)))
		}
	}
	b.WriteString(fmt.Sprintf("\nrun: <code>%s</code>", r.RunID))
	return b.String()
}

// FormatContext formats an analysis context for a chat reply.
func FormatContext(c *model.AnalysisContext) string {
	var b strings.Builder
	title := c.Code
	if c.Name != "" {
		title = c.Name + " " + c.Code
	}
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n\n", title, c.Date))
	if t := c.Today; t != nil {
		b.WriteString(fmt.Sprintf("收盘: %s | 涨跌幅: %s%%\n", num(t.Close.Float64, t.Close.Valid), num(t.PctChg.Float64, t.PctChg.Valid)))
		b.WriteString(fmt.Sprintf("MA5: %s | MA10: %s | MA20: %s\n",
			num(t.MA5.Float64, t.MA5.Valid), num(t.MA10.Float64, t.MA10.Valid), num(t.MA20.Float64, t.MA20.Valid)))
		b.WriteString(fmt.Sprintf("量比: %s\n", num(t.VolumeRatio.Float64, t.VolumeRatio.Valid)))
	}
	if c.VolumeChangeRatio.Valid {
		b.WriteString(fmt.Sprintf("成交量较昨日: %.2fx\n", c.VolumeChangeRatio.Float64))
	}
	if c.PriceChangeRatio.Valid {
		b.WriteString(fmt.Sprintf("价格较昨日: %+.2f%%\n", c.PriceChangeRatio.Float64))
	}
	if c.Regime != "" {
		b.WriteString(fmt.Sprintf("均线形态: %s\n", c.Regime.Label()))
	}
	return b.String()
}

func num(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return htmlEscaper.Replace(s) }
