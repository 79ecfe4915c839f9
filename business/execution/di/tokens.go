// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/arb-engine/business/execution/app"
	"github.com/fd1az/arb-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	ExecutionCoordinator = di.NewToken[*app.Coordinator]("execution.ExecutionCoordinator")
)

// Private dependency tokens - internal to execution module
var (
	Submitter = di.NewToken[app.Submitter]("execution:submitter")
)

// Helper functions for type-safe access
func GetExecutionCoordinator(c di.ServiceRegistry) *app.Coordinator {
	return di.GetToken(c, ExecutionCoordinator)
}

func GetSubmitter(c di.ServiceRegistry) app.Submitter {
	return di.GetToken(c, Submitter)
}
