// Package memoryutils is the memory utility package
package memoryutils

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/memory"
	"github.com/keepsakeco/keepsake/pkg/memory/inmemory"
	"github.com/keepsakeco/keepsake/pkg/memory/postgres"
	"github.com/keepsakeco/keepsake/pkg/memory/qdrant"
	"github.com/keepsakeco/keepsake/pkg/memory/sqlitevec"
)

type NewDriverOpts struct {
	ProviderType string

	// Target is provider specific: a database file path for sqlitevec, a
	// connection string for postgres, a host:port for qdrant. Ignored by
	// inmemory.
	Target string

	Dimensions uint
}

func NewDriver(ctx context.Context, o *NewDriverOpts, logger *zap.Logger) (memory.Driver, error) {
	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewDriver(), nil
	case "sqlitevec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, logger)
	case "postgres":
		return postgres.NewDriver(ctx, postgres.Config{
			ConnString: o.Target,
			Dimensions: o.Dimensions,
		}, logger)
	case "qdrant":
		host, portStr, err := net.SplitHostPort(o.Target)
		if err != nil {
			return nil, fmt.Errorf("qdrant target must be host:port, got %q: %w", o.Target, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("qdrant port %q: %w", portStr, err)
		}
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:       host,
			Port:       port,
			Dimensions: o.Dimensions,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported memory provider: %s", o.ProviderType)
	}
}
