// Package examplesvc ships small, concrete feature implementations used by
// the demo command: a static feature discovery source, a toy "greeter"
// plugin with one module, and a clock service. None of this is part of
// the core; it exists the way the teacher's internal/orchestrator package
// ships a default ServiceProvider/Module pairing for its own examples.
package examplesvc

import (
	"context"

	"github.com/corewire/backend/pkg/catalog"
)

// StaticDiscovery returns a fixed slice of features, implementing
// corebackend.FeatureDiscovery. It is registered as the root-scoped
// "featureDiscovery" service when a deployment wants features supplied
// out-of-band from the embedder's direct Add calls (e.g. plugins found on
// disk, or in this package's case, a hardcoded list used for demos and
// tests).
type StaticDiscovery struct {
	Features []catalog.Feature
}

// NewStaticDiscovery builds a StaticDiscovery returning features.
func NewStaticDiscovery(features ...catalog.Feature) *StaticDiscovery {
	return &StaticDiscovery{Features: features}
}

// GetBackendFeatures implements corebackend.FeatureDiscovery.
func (d *StaticDiscovery) GetBackendFeatures(ctx context.Context) ([]catalog.Feature, error) {
	return d.Features, nil
}
