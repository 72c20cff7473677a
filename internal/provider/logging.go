package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const (
	subsystem = "datasource"

	// LogLevelEnv controls the data source subsystem log level.
	LogLevelEnv = "TF_LOG_PROVIDER_AD_DATASOURCE"
)

// initializeLogging scopes ctx to the data source subsystem. Call it at the
// top of every Read.
func initializeLogging(ctx context.Context, dataSource string) context.Context {
	ctx = tflog.NewSubsystem(ctx, subsystem, tflog.WithLevelFromEnv(LogLevelEnv))
	return tflog.SubsystemSetField(ctx, subsystem, "data_source", dataSource)
}
