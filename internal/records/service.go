package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/raine/landadmin/internal/api"
)

const defaultDumpConcurrency = 4

// Page is one page of records. Pagination is nil when the backend does not
// page the entity.
type Page struct {
	Records    []Record        `json:"data"`
	Pagination *api.Pagination `json:"pagination,omitempty"`
}

type Service struct {
	client      *api.Client
	concurrency int
}

func NewService(client *api.Client) *Service {
	return &Service{client: client, concurrency: defaultDumpConcurrency}
}

func (s *Service) List(ctx context.Context, entity string, params map[string]string) ([]Record, error) {
	e, err := Lookup(entity)
	if err != nil {
		return nil, err
	}
	payload, err := s.client.List(ctx, e.Name, params)
	if err != nil {
		return nil, err
	}
	var rows []Record
	if err := payload.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s list: %w", e.Name, err)
	}
	return rows, nil
}

// Page lists one page of entity together with its paging metadata.
func (s *Service) Page(ctx context.Context, entity string, params map[string]string) (*Page, error) {
	e, err := Lookup(entity)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.ListPage(ctx, e.Name, params)
	if err != nil {
		return nil, err
	}

	page := Page{Pagination: raw.Pagination}
	if err := json.Unmarshal(raw.Data, &page.Records); err != nil {
		return nil, fmt.Errorf("failed to decode %s page: %w", e.Name, err)
	}
	if page.Pagination == nil && e.Paged {
		log.Debug().Str("entity", e.Name).Msg("paged entity returned no paging headers")
	}
	return &page, nil
}

func (s *Service) Get(ctx context.Context, entity, id string) (Record, error) {
	e, err := Lookup(entity)
	if err != nil {
		return nil, err
	}
	payload, err := s.client.Get(ctx, e.Name, id)
	if err != nil {
		return nil, err
	}
	return decodeRecord(e, payload)
}

// Create stores a new record and returns what the backend echoed back, which
// is nil for an empty response.
func (s *Service) Create(ctx context.Context, entity string, data Record) (Record, error) {
	e, err := Lookup(entity)
	if err != nil {
		return nil, err
	}
	payload, err := s.client.Create(ctx, e.Name, map[string]any(data))
	if err != nil {
		return nil, err
	}
	return decodeRecord(e, payload)
}

func (s *Service) Update(ctx context.Context, entity, id string, data Record) (Record, error) {
	e, err := Lookup(entity)
	if err != nil {
		return nil, err
	}
	payload, err := s.client.Update(ctx, e.Name, id, map[string]any(data))
	if err != nil {
		return nil, err
	}
	return decodeRecord(e, payload)
}

func (s *Service) Remove(ctx context.Context, entity, id string) error {
	e, err := Lookup(entity)
	if err != nil {
		return err
	}
	_, err = s.client.Remove(ctx, e.Name, id)
	return err
}

// Dump lists several entities concurrently. The first failure cancels the
// rest.
func (s *Service) Dump(ctx context.Context, entities []string) (map[string][]Record, error) {
	resolved := make([]Entity, 0, len(entities))
	for _, name := range entities {
		e, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, e)
	}

	var mu sync.Mutex
	out := make(map[string][]Record, len(resolved))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, e := range resolved {
		e := e
		g.Go(func() error {
			rows, err := s.List(ctx, e.Name, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Name, err)
			}
			mu.Lock()
			out[e.Name] = rows
			mu.Unlock()
			log.Debug().Str("entity", e.Name).Int("count", len(rows)).Msg("dumped entity")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeRecord(e Entity, payload *api.Payload) (Record, error) {
	if payload == nil || len(payload.Body) == 0 {
		return nil, nil
	}
	var rec Record
	if err := payload.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", e.Name, err)
	}
	return rec, nil
}
