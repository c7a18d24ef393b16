package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/services/rfq/config"
	"example.com/procurement/services/rfq/internal/models"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexRfqSummary indexes an RFQ award summary, replacing any previous
// document for the same RFQ
func (c *ElasticClient) IndexRfqSummary(ctx context.Context, summary *models.RfqAwardSummary) error {
	if c == nil {
		return errors.New("search client is not configured")
	}

	log.Info().
		Str("rfq_id", summary.RfqID.String()).
		Int64("version", summary.Version).
		Msg("indexing RFQ award summary")

	docJSON, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to marshal RFQ summary document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: summary.RfqID.String(),
		Body:       bytes.NewReader(docJSON),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to index RFQ summary")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.New(fmt.Sprintf("failed to index RFQ summary: %s", res.String()))
	}

	return nil
}
