package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"focusguard-backend/config"
	"focusguard-backend/internal/frame"
	"focusguard-backend/internal/proximity"
)

// HTTPDetector calls a JSON inference endpoint.
type HTTPDetector struct {
	cfg    config.DetectorConfig
	client *http.Client
	labels map[string]kind
}

type kind int

const (
	kindPerson kind = iota + 1
	kindPhone
)

// NewHTTPDetector creates a detector for cfg.URL, honouring the proxy and timeout settings.
func NewHTTPDetector(cfg config.DetectorConfig, logger zerolog.Logger) *HTTPDetector {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("invalid detector proxy URL, connecting directly")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	labels := make(map[string]kind)
	for _, l := range cfg.PersonLabels {
		labels[strings.ToLower(l)] = kindPerson
	}
	for _, l := range cfg.PhoneLabels {
		labels[strings.ToLower(l)] = kindPhone
	}

	return &HTTPDetector{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		labels: labels,
	}
}

// Detect posts the frame and maps the returned labels onto persons and phones. Other labels are ignored.
func (d *HTTPDetector) Detect(ctx context.Context, f *frame.Frame) (Detection, error) {
	jsonBody, err := json.Marshal(inferenceRequest{
		Image:  f.Base64(),
		Format: f.Format,
		Width:  f.Width,
		Height: f.Height,
	})
	if err != nil {
		return Detection{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return Detection{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range d.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Detection{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Detection{}, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Detection{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp InferenceResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Detection{}, fmt.Errorf("failed to unmarshal inference response: %w", err)
	}
	if apiResp.Code != 0 {
		return Detection{}, fmt.Errorf("inference service returned code %d: %s", apiResp.Code, apiResp.Message)
	}

	var det Detection
	for _, obj := range apiResp.Data.Detections {
		box := proximity.Box{
			X:          obj.Box[0],
			Y:          obj.Box[1],
			W:          obj.Box[2] - obj.Box[0],
			H:          obj.Box[3] - obj.Box[1],
			Confidence: obj.Confidence,
		}
		switch d.labels[strings.ToLower(obj.Label)] {
		case kindPerson:
			det.Persons = append(det.Persons, box)
		case kindPhone:
			det.Phones = append(det.Phones, box)
		}
	}
	return det, nil
}
