package search

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"example.com/backstage/services/charity/config"
	"example.com/backstage/services/charity/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Suggestion is a title match served to search-as-you-type
type Suggestion struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	City  string `json:"city"`
}

// Indexer keeps the event projection in sync and serves suggestions
type Indexer interface {
	IndexEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error
	SuggestTitles(ctx context.Context, prefix string, size int) ([]Suggestion, error)
}

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	return newElasticClient(cfg, elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
}

func newElasticClient(cfg config.ElasticConfig, esConfig elasticsearch.Config) (*ElasticClient, error) {
	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}
	return &ElasticClient{client: client, config: cfg}, nil
}

// NewIndexer returns the Elasticsearch indexer, or a no-op one when disabled
func NewIndexer(cfg config.ElasticConfig) (Indexer, error) {
	if !cfg.Enabled {
		return NoopIndexer{}, nil
	}
	return NewElasticClient(cfg)
}

func (c *ElasticClient) indexName() string {
	return config.FormatIndex(c.config, c.config.Index)
}

// EnsureIndex creates the events index with its mapping if it is missing
func (c *ElasticClient) EnsureIndex(ctx context.Context) error {
	index := c.indexName()

	res, err := c.client.Indices.Exists([]string{index}, c.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "failed to check index %s", index)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	log.Info().Str("index", index).Msg("Creating index")
	res, err = c.client.Indices.Create(index,
		c.client.Indices.Create.WithContext(ctx),
		c.client.Indices.Create.WithBody(strings.NewReader(eventMapping)),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create index %s", index)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("error creating index %s: %s", index, res.String())
	}
	return nil
}

const eventMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "title":       {"type": "search_as_you_type"},
      "short_story": {"type": "text"},
      "city":        {"type": "keyword"},
      "city_id":     {"type": "integer"},
      "status":      {"type": "keyword"},
      "is_approved": {"type": "boolean"},
      "finish_date": {"type": "date"},
      "updated_at":  {"type": "date"}
    }
  }
}`

// IndexEvent writes the event document
func (c *ElasticClient) IndexEvent(ctx context.Context, event *models.Event) error {
	doc := map[string]interface{}{
		"id":          event.ID.String(),
		"title":       event.Title,
		"short_story": event.ShortStory,
		"city":        event.City.Name,
		"city_id":     event.CityID,
		"status":      event.Status.Name,
		"is_approved": event.IsApproved,
		"updated_at":  event.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if event.FinishDate != nil {
		doc["finish_date"] = event.FinishDate.Format("2006-01-02")
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event document")
	}

	req := esapi.IndexRequest{
		Index:      c.indexName(),
		DocumentID: event.ID.String(),
		Body:       bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("Elasticsearch index error: %s", res.String())
	}

	log.Debug().Str("event_id", event.ID.String()).Msg("event indexed")
	return nil
}

// DeleteEvent removes the event document. A missing document is not an error.
func (c *ElasticClient) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	req := esapi.DeleteRequest{
		Index:      c.indexName(),
		DocumentID: id.String(),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch delete request")
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return errors.Errorf("Elasticsearch delete error: %s", res.String())
	}
	return nil
}

// SuggestTitles returns approved, non-closed events whose title starts with prefix
func (c *ElasticClient) SuggestTitles(ctx context.Context, prefix string, size int) ([]Suggestion, error) {
	query := map[string]interface{}{
		"size":    size,
		"_source": []string{"id", "title", "city"},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  prefix,
						"type":   "bool_prefix",
						"fields": []string{"title", "title._2gram", "title._3gram"},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"is_approved": true}},
				},
				"must_not": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"status": models.StatusClosed}},
				},
			},
		},
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.indexName()},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Errorf("Elasticsearch search error: %s", res.String())
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return nil, errors.Wrap(err, "failed to read Elasticsearch search response")
	}

	suggestions := []Suggestion{}
	gjson.GetBytes(buf.Bytes(), "hits.hits").ForEach(func(_, hit gjson.Result) bool {
		source := hit.Get("_source")
		suggestions = append(suggestions, Suggestion{
			ID:    source.Get("id").String(),
			Title: source.Get("title").String(),
			City:  source.Get("city").String(),
		})
		return true
	})
	return suggestions, nil
}

// NoopIndexer is used when Elasticsearch is disabled
type NoopIndexer struct{}

func (NoopIndexer) IndexEvent(ctx context.Context, event *models.Event) error { return nil }

func (NoopIndexer) DeleteEvent(ctx context.Context, id uuid.UUID) error { return nil }

func (NoopIndexer) SuggestTitles(ctx context.Context, prefix string, size int) ([]Suggestion, error) {
	return []Suggestion{}, nil
}
