package pebblestore

import "fmt"

// Key layout. Numeric components are 16-hex-digit zero-padded so that
// lexicographic byte order equals numeric order and range scans stream
// ascending by id.
//
//	inst/<instrument>                 instrument record
//	ord/<instrument>/<order>          full order journal
//	live/<instrument>/<order>         live-order projection
//	trade/<instrument>/<ts>/<seq>     trade journal, timestamp ordered
//	meta/next_order_id                counter high-water mark
const (
	instrumentPrefix = "inst/"
	orderPrefix      = "ord/"
	livePrefix       = "live/"
	tradePrefix      = "trade/"
	nextOrderIDKey   = "meta/next_order_id"
)

func instrumentKey(instrumentID uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", instrumentPrefix, instrumentID))
}

func orderKey(instrumentID, orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x/%016x", orderPrefix, instrumentID, orderID))
}

func liveOrderKey(instrumentID, orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x/%016x", livePrefix, instrumentID, orderID))
}

func tradeKey(instrumentID uint64, timestamp int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x/%016x/%08x", tradePrefix, instrumentID, uint64(timestamp), seq))
}

// rangeBounds returns the [lower, upper) bounds covering every key under
// prefix for one instrument.
func rangeBounds(prefix string, instrumentID uint64) ([]byte, []byte) {
	lower := []byte(fmt.Sprintf("%s%016x/", prefix, instrumentID))
	upper := []byte(fmt.Sprintf("%s%016x0", prefix, instrumentID))
	return lower, upper
}

// prefixBounds returns the [lower, upper) bounds covering every key under a
// bare prefix.
func prefixBounds(prefix string) ([]byte, []byte) {
	upper := []byte(prefix)
	upper[len(upper)-1]++
	return []byte(prefix), upper
}
