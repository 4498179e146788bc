package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-notebook/pkg/llm"
	"github.com/ekaya-inc/ekaya-notebook/pkg/repositories"
	"github.com/ekaya-inc/ekaya-notebook/pkg/retry"
)

const (
	metadataTemperature = 0.2
	maxSuggestions      = 5
)

const metadataSystemMessage = `You are a data analyst documenting a relational database.
Reply with one JSON object and nothing else.`

// MetadataInference is the LLM's description of a notebook database.
type MetadataInference struct {
	// Comments maps table name to column name to a one-line description.
	Comments    map[string]map[string]string `json:"comments"`
	Suggestions []string                     `json:"suggestions"`
}

// metadataResponse is the raw LLM reply. Models sometimes answer with numbers
// or a bare string where strings or lists are expected.
type metadataResponse struct {
	Comments    map[string]json.RawMessage `json:"comments"`
	Suggestions json.RawMessage            `json:"suggestions"`
}

func (r metadataResponse) inference() MetadataInference {
	inf := MetadataInference{
		Comments:    make(map[string]map[string]string, len(r.Comments)),
		Suggestions: jsonutil.FlexibleStringList(r.Suggestions),
	}
	for table, cols := range r.Comments {
		if m := jsonutil.FlexibleStringMap(cols); m != nil {
			inf.Comments[table] = m
		}
	}
	return inf
}

// MetadataService infers column comments and starter questions with an LLM.
type MetadataService interface {
	// Infer describes the notebook's tables and stores the suggested
	// questions on the notebook.
	Infer(ctx context.Context, notebookID string) (*MetadataInference, error)
}

type metadataService struct {
	pools     datasource.PoolProvider
	notebooks repositories.NotebookRepository
	client    llm.LLMClient
	retry     *retry.Config
	logger    *zap.Logger
}

var _ MetadataService = (*metadataService)(nil)

// NewMetadataService creates a metadata service. client may be nil when no
// LLM is configured; Infer then returns llm.ErrNotConfigured.
func NewMetadataService(pools datasource.PoolProvider, notebooks repositories.NotebookRepository, client llm.LLMClient, logger *zap.Logger) MetadataService {
	return &metadataService{
		pools:     pools,
		notebooks: notebooks,
		client:    client,
		retry:     retry.DefaultConfig(),
		logger:    logger.Named("metadata"),
	}
}

func (s *metadataService) Infer(ctx context.Context, notebookID string) (*MetadataInference, error) {
	if s.client == nil {
		return nil, llm.ErrNotConfigured
	}

	nb, err := s.notebooks.Get(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	pool, err := s.pools.Get(ctx, nb.DBName)
	if err != nil {
		return nil, err
	}
	tables, err := pool.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	prompt := buildMetadataPrompt(nb.Topic, tables)

	var response *llm.GenerateResponseResult
	err = retry.DoIfRetryable(ctx, s.retry, func() error {
		var genErr error
		response, genErr = s.client.GenerateResponse(ctx, prompt, metadataSystemMessage, metadataTemperature)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("metadata inference failed: %w", err)
	}

	raw, err := llm.ParseJSONResponse[metadataResponse](response.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata response: %w", err)
	}
	inference := raw.inference()
	normalizeInference(&inference, tables)

	if err := s.notebooks.UpdateSuggestions(ctx, nb.ID, inference.Suggestions); err != nil {
		return nil, err
	}

	s.logger.Info("Inferred notebook metadata",
		zap.String("id", nb.ID),
		zap.String("model", s.client.GetModel()),
		zap.Int("tables", len(inference.Comments)),
		zap.Int("suggestions", len(inference.Suggestions)))
	return &inference, nil
}

func buildMetadataPrompt(topic string, tables []datasource.TableMetadata) string {
	var b strings.Builder
	if topic != "" {
		fmt.Fprintf(&b, "Notebook topic: %s\n\n", topic)
	}
	b.WriteString("Tables:\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "- %s\n", t.TableName)
		for _, c := range t.Columns {
			if c.Comment != "" {
				fmt.Fprintf(&b, "    %s %s -- %s\n", c.Name, c.Type, c.Comment)
			} else {
				fmt.Fprintf(&b, "    %s %s\n", c.Name, c.Type)
			}
		}
	}
	fmt.Fprintf(&b, `
Return JSON shaped as {"comments": {"<table>": {"<column>": "<one-line description>"}}, "suggestions": ["<question>"]}.
Describe every column. Give at most %d short analytical questions a user could ask of this data.`, maxSuggestions)
	return b.String()
}

// normalizeInference drops tables and columns the database does not have and
// caps the suggestions.
func normalizeInference(inf *MetadataInference, tables []datasource.TableMetadata) {
	known := make(map[string]map[string]bool, len(tables))
	for _, t := range tables {
		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			cols[c.Name] = true
		}
		known[t.TableName] = cols
	}

	comments := make(map[string]map[string]string, len(inf.Comments))
	for table, cols := range inf.Comments {
		knownCols, ok := known[table]
		if !ok {
			continue
		}
		kept := make(map[string]string, len(cols))
		for col, comment := range cols {
			if knownCols[col] && strings.TrimSpace(comment) != "" {
				kept[col] = strings.TrimSpace(comment)
			}
		}
		if len(kept) > 0 {
			comments[table] = kept
		}
	}
	inf.Comments = comments

	suggestions := make([]string, 0, len(inf.Suggestions))
	for _, q := range inf.Suggestions {
		if q = strings.TrimSpace(q); q != "" && len(suggestions) < maxSuggestions {
			suggestions = append(suggestions, q)
		}
	}
	inf.Suggestions = suggestions
}
