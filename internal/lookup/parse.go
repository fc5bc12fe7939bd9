package lookup

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fairyhunter13/price-batch-service/internal/model"
	"github.com/fairyhunter13/price-batch-service/internal/pricing"
)

const fence = "```"

// StripFence removes a surrounding fenced-code wrapper, with or without a
// language tag, from s. Unfenced input is returned trimmed.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, fence) {
		return s
	}
	lines := strings.Split(s, "\n")
	if strings.HasPrefix(strings.TrimSpace(lines[0]), fence) {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), fence) {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ParseRecord decodes a service payload into a PriceRecord. Prices are run
// through pricing.Normalize.
func ParseRecord(payload string) (model.PriceRecord, error) {
	body := StripFence(payload)
	if body == "" {
		return model.PriceRecord{}, errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return model.PriceRecord{}, err
	}
	if m == nil {
		return model.PriceRecord{}, errors.New("payload is null")
	}
	return model.PriceRecord{
		HighestPrice:        pricing.Normalize(m["highest_price"]),
		HighestPriceProduct: text(m["highest_price_product"]),
		HighestPriceSource:  text(m["highest_price_source"]),
		HighestPriceURL:     text(m["highest_price_url"]),
		LowestPrice:         pricing.Normalize(m["lowest_price"]),
		LowestPriceProduct:  text(m["lowest_price_product"]),
		LowestPriceSource:   text(m["lowest_price_source"]),
		LowestPriceURL:      text(m["lowest_price_url"]),
	}, nil
}

func text(v any) *string {
	switch t := v.(type) {
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	}
	return nil
}
