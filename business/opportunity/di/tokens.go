// Package di contains dependency injection tokens for the opportunity context.
package di

import (
	"github.com/fd1az/arb-engine/business/opportunity/app"
	"github.com/fd1az/arb-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	ProfitModel      = di.NewToken[*app.Model]("opportunity.ProfitModel")
	RiskAssessor     = di.NewToken[*app.Assessor]("opportunity.RiskAssessor")
	OpportunityStore = di.NewToken[*app.Store]("opportunity.OpportunityStore")
)

// Helper functions for type-safe access
func GetProfitModel(c di.ServiceRegistry) *app.Model {
	return di.GetToken(c, ProfitModel)
}

func GetRiskAssessor(c di.ServiceRegistry) *app.Assessor {
	return di.GetToken(c, RiskAssessor)
}

func GetOpportunityStore(c di.ServiceRegistry) *app.Store {
	return di.GetToken(c, OpportunityStore)
}
