package collector

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Exchange is the listing venue of an A-share code.
type Exchange string

const (
	ExchangeSH Exchange = "SH"
	ExchangeSZ Exchange = "SZ"
)

var (
	shPrefixes = []string{"600", "601", "603", "688"}
	szPrefixes = []string{"000", "002", "300"}
)

// ExchangeOf infers the venue from the code prefix. An explicit ".SH"/".SZ"
// suffix wins. Unknown prefixes fall back to SZ with ok=false; the fallback
// is a heuristic and may be wrong for codes outside the known boards.
func ExchangeOf(code string) (ex Exchange, ok bool) {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		switch Exchange(strings.ToUpper(code[i+1:])) {
		case ExchangeSH, "SS":
			return ExchangeSH, true
		case ExchangeSZ:
			return ExchangeSZ, true
		}
		return ExchangeSZ, false
	}
	for _, p := range shPrefixes {
		if strings.HasPrefix(code, p) {
			return ExchangeSH, true
		}
	}
	for _, p := range szPrefixes {
		if strings.HasPrefix(code, p) {
			return ExchangeSZ, true
		}
	}
	return ExchangeSZ, false
}

// BareCode strips any exchange suffix.
func BareCode(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		return code[:i]
	}
	return code
}

// TushareCode renders a code as "600519.SH". Codes that already carry a
// suffix are only upper-cased.
func TushareCode(code string, log *logrus.Entry) string {
	if strings.Contains(code, ".") {
		return strings.ToUpper(code)
	}
	return code + "." + string(exchange(code, log))
}

// EastMoneySecID renders a code as "1.600519" (SH) or "0.000001" (SZ).
func EastMoneySecID(code string, log *logrus.Entry) string {
	if exchange(code, log) == ExchangeSH {
		return "1." + BareCode(code)
	}
	return "0." + BareCode(code)
}

// YahooSymbol renders a code as "600519.SS" or "000001.SZ".
func YahooSymbol(code string, log *logrus.Entry) string {
	if exchange(code, log) == ExchangeSH {
		return BareCode(code) + ".SS"
	}
	return BareCode(code) + ".SZ"
}

func exchange(code string, log *logrus.Entry) Exchange {
	ex, ok := ExchangeOf(code)
	if !ok && log != nil {
		log.WithField("code", code).Warn("unrecognized code prefix, assuming SZ")
	}
	return ex
}
