package services

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Output normalization. The provider answers with one of several shapes:
// a bare URL string, an array of URL-bearing values, an object exposing a
// URL accessor, or a nested generated_samples structure. All of them are
// normalized exactly once, here at the client boundary, into an explicit
// sum type. An unrecognized shape is a hard failure, never a coercion.
// ---------------------------------------------------------------------------

type OutputKind int

const (
	OutputSingle OutputKind = iota
	OutputMultiple
)

// Output is the normalized generation output.
type Output struct {
	Kind OutputKind
	URLs []string // len 1 for OutputSingle, ordered for OutputMultiple
}

// First returns the primary clip URL.
func (o Output) First() string {
	if len(o.URLs) == 0 {
		return ""
	}
	return o.URLs[0]
}

// rawOutput mirrors the object shapes the provider is known to emit.
type rawOutput struct {
	URL      string          `json:"url"`
	VideoURL string          `json:"video_url"`
	Video    *rawVideoObject `json:"video"`
	Output   json.RawMessage `json:"output"`
	Samples  []rawSample     `json:"generated_samples"`
}

type rawVideoObject struct {
	URL string `json:"url"`
	URI string `json:"uri"`
}

type rawSample struct {
	URL   string          `json:"url"`
	Video *rawVideoObject `json:"video"`
}

func (v *rawVideoObject) href() string {
	if v == nil {
		return ""
	}
	if v.URL != "" {
		return v.URL
	}
	return v.URI
}

// normalizeOutput turns a raw provider response body into an Output.
func normalizeOutput(body []byte) (Output, error) {
	// Bare URL string
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		if s == "" {
			return Output{}, fmt.Errorf("unrecognized provider output: empty string")
		}
		return Output{Kind: OutputSingle, URLs: []string{s}}, nil
	}

	// Array of URL-bearing values (strings or objects)
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		urls, err := urlsFromArray(arr)
		if err != nil {
			return Output{}, err
		}
		return multiOrSingle(urls), nil
	}

	// Object with an accessor field or nested samples
	var obj rawOutput
	if err := json.Unmarshal(body, &obj); err == nil {
		if urls, ok := urlsFromObject(obj); ok {
			return multiOrSingle(urls), nil
		}
	}

	return Output{}, fmt.Errorf("unrecognized provider output shape: %s", truncateBody(body))
}

func urlsFromArray(arr []json.RawMessage) ([]string, error) {
	urls := make([]string, 0, len(arr))
	for i, raw := range arr {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			urls = append(urls, s)
			continue
		}

		var obj rawOutput
		if err := json.Unmarshal(raw, &obj); err == nil {
			if u := firstAccessor(obj); u != "" {
				urls = append(urls, u)
				continue
			}
		}

		return nil, fmt.Errorf("unrecognized provider output element %d: %s", i, truncateBody(raw))
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("unrecognized provider output: empty array")
	}
	return urls, nil
}

func urlsFromObject(obj rawOutput) ([]string, bool) {
	if u := firstAccessor(obj); u != "" {
		return []string{u}, true
	}

	// "output" may itself be a string or an array of strings
	if len(obj.Output) > 0 {
		var s string
		if err := json.Unmarshal(obj.Output, &s); err == nil && s != "" {
			return []string{s}, true
		}
		var ss []string
		if err := json.Unmarshal(obj.Output, &ss); err == nil && len(ss) > 0 {
			return ss, true
		}
	}

	if len(obj.Samples) > 0 {
		urls := make([]string, 0, len(obj.Samples))
		for _, sample := range obj.Samples {
			if sample.URL != "" {
				urls = append(urls, sample.URL)
			} else if u := sample.Video.href(); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			return urls, true
		}
	}

	return nil, false
}

func firstAccessor(obj rawOutput) string {
	if obj.URL != "" {
		return obj.URL
	}
	if obj.VideoURL != "" {
		return obj.VideoURL
	}
	return obj.Video.href()
}

func multiOrSingle(urls []string) Output {
	if len(urls) == 1 {
		return Output{Kind: OutputSingle, URLs: urls}
	}
	return Output{Kind: OutputMultiple, URLs: urls}
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
