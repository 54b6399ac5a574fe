package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/korjavin/medcasebot/logger"
	"github.com/korjavin/medcasebot/models"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by CaseByID for unknown or retired cases
var ErrNotFound = errors.New("case not found")

// Store is the persistence the catalog needs
type Store interface {
	AllCaseIDs(ctx context.Context) ([]string, error)
	CaseByID(ctx context.Context, id string) (models.Case, error)
	RetireCase(ctx context.Context, id string) error
	UpsertCase(ctx context.Context, c models.Case) error
}

// Catalog gives read access to cases and retires those whose content disappeared
type Catalog struct {
	store      Store
	isNotFound func(error) bool
	log        *logger.Logger
}

// New creates a catalog. isNotFound recognises the store's "no such row" error.
func New(store Store, isNotFound func(error) bool, log *logger.Logger) *Catalog {
	if isNotFound == nil {
		isNotFound = func(error) bool { return false }
	}
	return &Catalog{
		store:      store,
		isNotFound: isNotFound,
		log:        log.With("service", "Catalog"),
	}
}

// AllCaseIDs returns every case still available for selection
func (c *Catalog) AllCaseIDs(ctx context.Context) ([]string, error) {
	return c.store.AllCaseIDs(ctx)
}

// CaseByID returns ErrNotFound when the case does not exist or was retired
func (c *Catalog) CaseByID(ctx context.Context, id string) (models.Case, error) {
	cs, err := c.store.CaseByID(ctx, id)
	if err != nil {
		if c.isNotFound(err) {
			return models.Case{}, ErrNotFound
		}
		return models.Case{}, err
	}
	return cs, nil
}

// Retire permanently removes the case from selection; retiring twice is harmless
func (c *Catalog) Retire(ctx context.Context, id string) error {
	if err := c.store.RetireCase(ctx, id); err != nil {
		return fmt.Errorf("retiring case %s: %w", id, err)
	}
	return nil
}

// seedFile is the YAML layout accepted by Import
type seedFile struct {
	Cases []seedCase `yaml:"cases"`
}

type seedCase struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source"`
	Answer string `yaml:"answer"`
}

// Import reads a YAML catalog seed and upserts every entry, returning how many were stored.
// Invalid entries are logged and skipped.
func (c *Catalog) Import(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading catalog: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parsing catalog: %w", err)
	}

	stored := 0
	seen := make(map[string]bool)
	for i, entry := range seed.Cases {
		cs, err := entry.toCase()
		if err != nil {
			c.log.Warn("Skipping invalid catalog entry", "index", i, "id", entry.ID, "error", err)
			continue
		}
		if seen[cs.ID] {
			c.log.Warn("Skipping duplicate catalog entry", "index", i, "id", cs.ID)
			continue
		}
		seen[cs.ID] = true
		if err := c.store.UpsertCase(ctx, cs); err != nil {
			return stored, fmt.Errorf("storing case %s: %w", cs.ID, err)
		}
		stored++
	}
	c.log.Info("Catalog imported", "path", path, "stored", stored, "entries", len(seed.Cases))
	return stored, nil
}

func (s seedCase) toCase() (models.Case, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return models.Case{}, errors.New("missing id")
	}
	src, err := models.ParseSourceRef(s.Source)
	if err != nil {
		return models.Case{}, err
	}
	answer, ok := models.ParseAnswer(s.Answer)
	if !ok {
		return models.Case{}, fmt.Errorf("invalid answer %q", s.Answer)
	}
	return models.Case{ID: id, Source: src, Correct: answer}, nil
}
