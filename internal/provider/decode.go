package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/model"
)

var (
	// ErrFetchFailed wraps transport failures and non-OK responses.
	ErrFetchFailed = errors.New("provider: fetch failed")
	// ErrDecodeFailed wraps payloads whose shape does not match.
	ErrDecodeFailed = errors.New("provider: decode failed")
)

type wireLocation struct {
	Title string `json:"title"`
	City  string `json:"city"`
}

type wireResponse struct {
	Title    string        `json:"title"`
	Location *wireLocation `json:"location"`
	Items    []wireItem    `json:"items"`
}

// DecodeJSON decodes a JSON provider response. Individual items with bad
// dates are logged and skipped; a body that is not the expected shape fails
// with ErrDecodeFailed.
func DecodeJSON(body []byte, loc *time.Location) (model.Payload, error) {
	if len(body) == 0 {
		return model.Payload{}, fmt.Errorf("%w: empty body", ErrDecodeFailed)
	}
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Payload{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if resp.Items == nil {
		return model.Payload{}, fmt.Errorf("%w: missing items", ErrDecodeFailed)
	}

	out := model.Payload{LocationLabel: resp.Title}
	if resp.Location != nil {
		if resp.Location.Title != "" {
			out.LocationLabel = resp.Location.Title
		} else if resp.Location.City != "" {
			out.LocationLabel = resp.Location.City
		}
	}

	out.Fragments = classifyAll(resp.Items, loc)
	return out, nil
}

func classifyAll(items []wireItem, loc *time.Location) []model.Fragment {
	frags := make([]model.Fragment, 0, len(items))
	for _, it := range items {
		f, err := classify(it, loc)
		if err != nil {
			appLog.Error("provider item skipped", err, "title", it.Title, "category", it.Category)
			continue
		}
		if f.Kind == model.KindUnknown {
			appLog.Debug("provider item has unrecognized category", "title", it.Title, "category", it.Category)
		}
		frags = append(frags, f)
	}
	return frags
}
