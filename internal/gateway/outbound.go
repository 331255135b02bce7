package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/medina-app/medina/internal/fieldset"
	"github.com/medina-app/medina/internal/placecache"
	"github.com/medina-app/medina/internal/placekey"
	"github.com/medina-app/medina/internal/redact"
)

// defaultAutocompleteTypes is sent when the caller does not narrow the
// prediction categories.
var defaultAutocompleteTypes = []string{"restaurant", "cafe", "bakery", "food"}

const (
	// maxErrorBodyBytes caps how much of a provider error body is read; the
	// message is truncated far below this anyway.
	maxErrorBodyBytes = 64 * 1024
	// maxSuccessBodyBytes bounds success bodies. Enhanced place details with
	// reviews and photo metadata run well past 64 KB, so this cap is generous.
	maxSuccessBodyBytes = 16 * 1024 * 1024
)

// Places API v1 request bodies.

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type circleBias struct {
	Circle struct {
		Center latLng  `json:"center"`
		Radius float64 `json:"radius"`
	} `json:"circle"`
}

type rectangleRestriction struct {
	Rectangle struct {
		Low  latLng `json:"low"`
		High latLng `json:"high"`
	} `json:"rectangle"`
}

type textSearchBody struct {
	TextQuery           string                `json:"textQuery"`
	LanguageCode        string                `json:"languageCode"`
	RegionCode          string                `json:"regionCode"`
	LocationBias        *circleBias           `json:"locationBias,omitempty"`
	LocationRestriction *rectangleRestriction `json:"locationRestriction,omitempty"`
}

type autocompleteBody struct {
	Input                string      `json:"input"`
	LanguageCode         string      `json:"languageCode"`
	RegionCode           string      `json:"regionCode"`
	SessionToken         string      `json:"sessionToken,omitempty"`
	IncludedPrimaryTypes []string    `json:"includedPrimaryTypes"`
	LocationBias         *circleBias `json:"locationBias,omitempty"`
}

func toCircleBias(b *placecache.LocationBias) *circleBias {
	if b == nil {
		return nil
	}
	c := &circleBias{}
	c.Circle.Center = latLng{Latitude: b.Lat, Longitude: b.Lng}
	c.Circle.Radius = b.RadiusMeters
	return c
}

func toRectangle(r *placecache.LocationRestriction) *rectangleRestriction {
	if r == nil {
		return nil
	}
	rect := &rectangleRestriction{}
	rect.Rectangle.Low = latLng{Latitude: r.South, Longitude: r.West}
	rect.Rectangle.High = latLng{Latitude: r.North, Longitude: r.East}
	return rect
}

// buildOutbound composes the method, URL, and body for one provider call.
func (g *Gateway) buildOutbound(p Params, fs fieldset.FieldSet) (method, callURL string, body any, err error) {
	switch p.EndpointClass {
	case fieldset.ClassPlaceDetails:
		q := url.Values{}
		q.Set("languageCode", p.Language)
		q.Set("regionCode", p.RegionCode)
		return http.MethodGet,
			g.baseURL + "/places/" + url.PathEscape(p.PlaceID) + "?" + q.Encode(),
			nil, nil
	case fieldset.ClassTextSearch:
		return http.MethodPost, g.baseURL + "/places:searchText", textSearchBody{
			TextQuery:           p.Query,
			LanguageCode:        p.Language,
			RegionCode:          p.RegionCode,
			LocationBias:        toCircleBias(p.LocationBias),
			LocationRestriction: toRectangle(p.LocationRestriction),
		}, nil
	case fieldset.ClassAutocomplete:
		types := p.IncludedTypes
		if len(types) == 0 {
			types = defaultAutocompleteTypes
		}
		return http.MethodPost, g.baseURL + "/places:autocomplete", autocompleteBody{
			Input:                p.Input,
			LanguageCode:         p.Language,
			RegionCode:           p.RegionCode,
			SessionToken:         p.SessionToken,
			IncludedPrimaryTypes: types,
			LocationBias:         toCircleBias(p.LocationBias),
		}, nil
	}
	return "", "", nil, fmt.Errorf("no outbound mapping for class %q", p.EndpointClass)
}

// callProvider executes one outbound HTTPS exchange under the configured
// timeout. The request is cancelled when the deadline elapses. breakerFail
// reports whether the outcome counts against the circuit: network errors,
// timeouts, 429, and 5xx do; other 4xx do not.
func (g *Gateway) callProvider(ctx context.Context, p Params, fs fieldset.FieldSet, apiKey string) (data map[string]any, provErr *ProviderError, breakerFail bool) {
	method, callURL, body, err := g.buildOutbound(p, fs)
	if err != nil {
		return nil, &ProviderError{Code: CodeInternalError, Message: err.Error()}, false
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &ProviderError{Code: CodeInternalError, Message: "encode request body: " + err.Error()}, false
		}
		reader = bytes.NewReader(buf)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, callURL, reader)
	if err != nil {
		return nil, &ProviderError{Code: CodeInternalError, Message: "build request: " + err.Error()}, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", apiKey)
	req.Header.Set("X-Goog-FieldMask", fs.Mask)
	if p.SessionToken != "" && p.EndpointClass != fieldset.ClassAutocomplete {
		// Autocomplete carries the session token in the body instead.
		req.Header.Set("X-Goog-Session-Token", p.SessionToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ProviderError{
				Code:      CodeTimeout,
				Message:   fmt.Sprintf("provider call exceeded %s", g.timeout),
				Retryable: true,
			}, true
		}
		return nil, &ProviderError{
			Code:      CodeNetworkError,
			Message:   redact.Redact(err.Error()),
			Retryable: true,
		}, true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		msg := string(raw)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &ProviderError{
			Code:      redact.StatusToCode(resp.StatusCode),
			Message:   redact.Redact(msg),
			Retryable: redact.IsRetryable(resp.StatusCode),
		}, resp.StatusCode == 429 || resp.StatusCode >= 500
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSuccessBodyBytes))
	if err != nil {
		return nil, &ProviderError{
			Code:      CodeNetworkError,
			Message:   "read response: " + redact.Redact(err.Error()),
			Retryable: true,
		}, true
	}

	data = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, &ProviderError{
				Code:    CodeInternalError,
				Message: "decode response: " + redact.Redact(err.Error()),
			}, false
		}
	}
	return data, nil, false
}

// extractPlaceKeys pulls the place IDs out of a search response and re-tags
// them as provider place keys. The v1 API exposes the ID both as the "id"
// field and as the resource name "places/{id}".
func extractPlaceKeys(data map[string]any) []string {
	places, ok := data["places"].([]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(places))
	for _, raw := range places {
		place, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id := ""
		if name, ok := place["name"].(string); ok && len(name) > len("places/") && name[:len("places/")] == "places/" {
			id = name[len("places/"):]
		} else if pid, ok := place["id"].(string); ok {
			id = pid
		}
		if id != "" {
			keys = append(keys, placekey.FromProviderID(id).String())
		}
	}
	return keys
}
