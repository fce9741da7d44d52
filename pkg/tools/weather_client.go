package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/comigor/gustavo-go/internal/config"
)

// UpstreamError is a non-200 answer from the weather provider.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return "weather provider: " + e.Message
	}
	return fmt.Sprintf("weather provider: unexpected status code: %d", e.StatusCode)
}

// Weather is the subset of the OpenWeatherMap current-weather payload we use.
type Weather struct {
	Location    string
	Temperature float64
	Description string
}

// WeatherClient is a client for the OpenWeatherMap current weather API
type WeatherClient struct {
	cfg    config.WeatherConfig
	client *http.Client
}

// NewWeatherClient creates a new WeatherClient
func NewWeatherClient(cfg config.WeatherConfig) *WeatherClient {
	return &WeatherClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether an API key is present.
func (c *WeatherClient) Configured() bool { return c.cfg.APIKey != "" }

// Current fetches the current weather for a free-text location such as "Curitiba, BR".
// Upstream error bodies ({"cod": "404", "message": "city not found"}) are returned as *UpstreamError.
func (c *WeatherClient) Current(ctx context.Context, location string) (*Weather, error) {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", "metric")
	q.Set("lang", "pt_br")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		upErr := &UpstreamError{StatusCode: resp.StatusCode}
		var body struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			upErr.Message = body.Message
		}
		return nil, upErr
	}

	var data struct {
		Name string `json:"name"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	w := &Weather{Location: data.Name, Temperature: data.Main.Temp}
	if len(data.Weather) > 0 {
		w.Description = data.Weather[0].Description
	}
	return w, nil
}
