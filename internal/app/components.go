package app

import (
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/gate"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/routes"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/users"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Gate enforces the route policy in front of every handler
	Gate *gate.Gate

	// Resolver identifies the caller of each request
	Resolver gate.Resolver

	// Classifier maps paths to route tiers
	Classifier *routes.Classifier

	// Users is the directory fed by the identity webhook
	Users users.Store
}
