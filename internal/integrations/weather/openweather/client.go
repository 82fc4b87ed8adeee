package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/FieldSync/internal/integrations/weather"
	"github.com/BearBump/FieldSync/internal/models"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

var _ weather.Provider = (*Client)(nil)

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type owmResp struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (c *Client) CurrentAt(ctx context.Context, loc models.LatLng) (weather.Report, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return weather.Report{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/data/2.5/weather"

	q := u.Query()
	q.Set("lat", fmt.Sprintf("%f", loc.Lat))
	q.Set("lon", fmt.Sprintf("%f", loc.Lng))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return weather.Report{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return weather.Report{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return weather.Report{}, fmt.Errorf("openweather http %d", resp.StatusCode)
	}

	var r owmResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return weather.Report{}, errors.Wrap(err, "decode")
	}

	rep := weather.Report{
		TempC:       r.Main.Temp,
		WindSpeedMS: r.Wind.Speed,
	}
	if len(r.Weather) > 0 {
		rep.Summary = r.Weather[0].Description
		rep.Impact = severeCondition(r.Weather[0].Main)
	}
	// Штормовой ветер мешает полевым работам независимо от осадков.
	if r.Wind.Speed >= 15 {
		rep.Impact = true
	}
	return rep, nil
}

func severeCondition(main string) bool {
	switch main {
	case "Thunderstorm", "Snow", "Rain", "Squall", "Tornado":
		return true
	}
	return false
}
