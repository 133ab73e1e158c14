package marketdata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Service proxies the third-party market-data API that supplies the
// sentiment and macro columns of the indicator dataset.
type Service struct {
	base   string
	token  string
	client *resty.Client
}

func NewService(base, token string) *Service {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &Service{
		base:   base,
		token:  token,
		client: client,
	}
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// IndexPoint is one day of a search-interest series
type IndexPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// IndexSeries is the search-interest history for one keyword
type IndexSeries struct {
	Keyword string       `json:"keyword"`
	Points  []IndexPoint `json:"points"`
}

// MacroStats carries the regional macro indicators consumed by the model
type MacroStats struct {
	Region    string  `json:"region"`
	GDP       float64 `json:"gdp"`
	Popu      float64 `json:"population"`
	AvgSalary float64 `json:"avg_salary"`
}

func (s *Service) get(endpoint string, params map[string]string, out interface{}) error {
	resp, err := s.client.R().
		SetHeader("ApiToken", s.token).
		SetQueryParams(params).
		Get(s.base + endpoint)
	if err != nil {
		return fmt.Errorf("market data request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("market data API returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	var env apiEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("failed to decode market data response: %w", err)
	}
	if env.Code != 200 {
		return fmt.Errorf("market data API error %d: %s", env.Code, env.Msg)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode market data payload: %w", err)
	}
	return nil
}

// GetSearchIndex fetches the daily search-interest series for a keyword
func (s *Service) GetSearchIndex(keyword, start, end string) (*IndexSeries, error) {
	var series IndexSeries
	err := s.get("index/search", map[string]string{
		"keyword": keyword,
		"start":   start,
		"end":     end,
	}, &series)
	if err != nil {
		return nil, err
	}
	series.Keyword = keyword
	return &series, nil
}

// GetMacroStats fetches GDP, population and average salary for a region
func (s *Service) GetMacroStats(region string) (*MacroStats, error) {
	var stats MacroStats
	if err := s.get("macro/region", map[string]string{"region": region}, &stats); err != nil {
		return nil, err
	}
	stats.Region = region
	return &stats, nil
}
