package mssql

import (
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/adapters/datasource"
	"github.com/prepflow-inc/prepflow-engine/pkg/config"
)

func init() {
	datasource.Register("mssql", func(cfg *config.SourceConfig, logger *zap.Logger) (datasource.Adapter, error) {
		return New(cfg, logger)
	})
}
