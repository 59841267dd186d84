// Package catalog is the seam to the API/plan catalog. The portal core only
// consumes the catalog; it is maintained elsewhere and loaded here from a
// static JSON document.
package catalog

import (
	"encoding/json"
	"log"
	"os"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/model"
)

var catLog = log.New(os.Stdout, "CATALOG:", log.Ldate|log.Ltime)

// Catalog resolves APIs and plans by id.
type Catalog interface {
	GetApi(id string) (*model.API, error)
	GetPlan(id string) (*model.Plan, error)
	Apis() []model.API
	Plans() []model.Plan
}

// Document is the on-disk shape of a catalog file.
type Document struct {
	Apis  []model.API  `json:"apis"`
	Plans []model.Plan `json:"plans"`
}

type staticCatalog struct {
	apis    map[string]model.API
	plans   map[string]model.Plan
	apiIds  []string
	planIds []string
}

// NewStatic builds an immutable catalog from the given entries.
func NewStatic(apis []model.API, plans []model.Plan) Catalog {
	c := &staticCatalog{
		apis:  make(map[string]model.API, len(apis)),
		plans: make(map[string]model.Plan, len(plans)),
	}
	for _, api := range apis {
		c.apis[api.Id] = api
		c.apiIds = append(c.apiIds, api.Id)
	}
	for _, plan := range plans {
		c.plans[plan.Id] = plan
		c.planIds = append(c.planIds, plan.Id)
	}
	return c
}

// LoadFile reads a catalog document from a JSON file.
func LoadFile(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	catLog.Printf("Loaded catalog from %s: %d APIs, %d plans", path, len(doc.Apis), len(doc.Plans))
	return NewStatic(doc.Apis, doc.Plans), nil
}

func (c *staticCatalog) GetApi(id string) (*model.API, error) {
	api, ok := c.apis[id]
	if !ok {
		return nil, apperr.NotFound("API %s is unknown", id)
	}
	return &api, nil
}

func (c *staticCatalog) GetPlan(id string) (*model.Plan, error) {
	plan, ok := c.plans[id]
	if !ok {
		return nil, apperr.NotFound("Plan %s is unknown", id)
	}
	return &plan, nil
}

func (c *staticCatalog) Apis() []model.API {
	apis := make([]model.API, 0, len(c.apiIds))
	for _, id := range c.apiIds {
		apis = append(apis, c.apis[id])
	}
	return apis
}

func (c *staticCatalog) Plans() []model.Plan {
	plans := make([]model.Plan, 0, len(c.planIds))
	for _, id := range c.planIds {
		plans = append(plans, c.plans[id])
	}
	return plans
}
