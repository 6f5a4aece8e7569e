package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chargewatch/internal/models"
)

// HTTPDoer defines the http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client fetches one status snapshot per poll from the upstream feed.
type Client struct {
	url    string
	client HTTPDoer
	logger *zap.Logger
	now    func() time.Time
}

// NewClient builds an upstream feed client with a bounded request timeout.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

type upstreamConnector struct {
	Type    string  `json:"type"`
	Status  string  `json:"status"`
	PowerKW float64 `json:"powerKW"`
}

type upstreamCharger struct {
	Name       string              `json:"name"`
	Connectors []upstreamConnector `json:"connectors"`
}

// Poll fetches current connector statuses and stamps them all with one poll
// instant, returned alongside so downstream consumers share it. Malformed
// chargers or connectors are skipped with a diagnostic, never aborting the
// snapshot.
func (c *Client) Poll(ctx context.Context) ([]models.ConnectorEvent, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("feed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("feed: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, fmt.Errorf("feed: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("feed: read body: %w", err)
	}

	var chargers []upstreamCharger
	if err := json.Unmarshal(body, &chargers); err != nil {
		return nil, time.Time{}, fmt.Errorf("feed: decode body: %w", err)
	}

	at := c.now().UTC()
	return c.toEvents(chargers, at), at, nil
}

func (c *Client) toEvents(chargers []upstreamCharger, at time.Time) []models.ConnectorEvent {
	var events []models.ConnectorEvent
	for _, charger := range chargers {
		if charger.Name == "" {
			c.logger.Warn("feed: charger without name skipped")
			continue
		}
		ordinals := make(map[string]int, len(charger.Connectors))
		for _, conn := range charger.Connectors {
			if conn.Type == "" {
				c.logger.Warn("feed: connector without type skipped",
					zap.String("charger", charger.Name))
				continue
			}
			// A malformed connector still consumes its ordinal so the IDs of
			// its siblings stay put.
			ordinals[conn.Type]++
			if conn.Status == "" {
				c.logger.Warn("feed: connector without status skipped",
					zap.String("charger", charger.Name))
				continue
			}
			events = append(events, models.ConnectorEvent{
				ChargerName:   charger.Name,
				ConnectorID:   ConnectorID(charger.Name, conn.Type, ordinals[conn.Type]),
				ConnectorType: conn.Type,
				PowerKW:       conn.PowerKW,
				Status:        models.Status(conn.Status),
				Timestamp:     at,
			})
		}
	}
	return events
}
