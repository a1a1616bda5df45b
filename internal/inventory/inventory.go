package inventory

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

// UnknownItemName is displayed for items the backend could not name.
const UnknownItemName = "Unknown Item"

// ItemResult is one tracked object detected in a video.
type ItemResult struct {
	Class          string   `json:"class"`
	TrackID        int      `json:"track_id"`
	Confidence     float64  `json:"confidence"`
	BestConfidence float64  `json:"best_confidence"`
	FirstSeenFrame int      `json:"first_seen_frame"`
	SnapshotFrame  int      `json:"snapshot_frame"`
	SnapshotPath   string   `json:"snapshot_path,omitempty"`
	EstimatedName  string   `json:"estimated_name,omitempty"`
	EstimatedPrice *float64 `json:"estimated_price"`
	PublicURL      string   `json:"public_url,omitempty"`
}

// DisplayName returns the estimated name, or UnknownItemName.
func (r ItemResult) DisplayName() string {
	if r.EstimatedName == "" {
		return UnknownItemName
	}
	return r.EstimatedName
}

// ConfidencePercent returns the best confidence as a whole percentage.
func (r ItemResult) ConfidencePercent() int {
	return int(r.BestConfidence*100 + 0.5)
}

// PriceLabel formats the estimated price, or "N/A" when there is none.
func (r ItemResult) PriceLabel() string {
	if r.EstimatedPrice == nil {
		return "N/A"
	}
	return FormatPrice(*r.EstimatedPrice)
}

// FormatPrice renders an amount as dollars with thousands separators.
func FormatPrice(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// ResultSet maps item keys (e.g. "tv_1") to their results. It is produced by
// the backend and never modified by the client.
type ResultSet map[string]ItemResult

// TotalValue sums the estimated prices that are present.
func (rs ResultSet) TotalValue() float64 {
	var total float64
	for _, item := range rs {
		if item.EstimatedPrice != nil {
			total += *item.EstimatedPrice
		}
	}
	return total
}

// ItemCount returns the number of detected items.
func (rs ResultSet) ItemCount() int {
	return len(rs)
}

// Keys returns the item keys in sorted order.
func (rs ResultSet) Keys() []string {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseResultSet decodes a JSON result document. An empty or null document
// yields a nil set.
func ParseResultSet(data []byte) (ResultSet, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var rs ResultSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse result set: %w", err)
	}
	return rs, nil
}

// Price returns a pointer to v, for building results in code.
func Price(v float64) *float64 {
	return &v
}
