package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/FieldSync/internal/integrations/travel"
	"github.com/BearBump/FieldSync/internal/models"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

var _ travel.Provider = (*Client)(nil)

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://router.project-osrm.org"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type osrmResp struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (c *Client) TravelTime(ctx context.Context, from, to models.LatLng) (time.Duration, error) {
	// OSRM ожидает lng,lat.
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		c.baseURL, from.Lng, from.Lat, to.Lng, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("osrm http %d", resp.StatusCode)
	}

	var r osrmResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, errors.Wrap(err, "decode")
	}
	if r.Code != "Ok" || len(r.Routes) == 0 {
		return 0, fmt.Errorf("osrm no route: code=%s", r.Code)
	}
	return time.Duration(r.Routes[0].Duration * float64(time.Second)), nil
}
