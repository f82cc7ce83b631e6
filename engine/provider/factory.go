package provider

import (
	"fmt"
	"log/slog"
)

// Provider names accepted by New.
const (
	KindPlantNet = "plantnet"
	KindPlantID  = "plantid"
	KindNone     = "none"
)

// New returns the adapter named by kind. An empty kind disables the
// provider stage.
func New(kind string, opts Options, logger *slog.Logger) (Adapter, error) {
	switch kind {
	case KindPlantNet:
		return NewPlantNet(opts, logger), nil
	case KindPlantID:
		return NewPlantID(opts, logger), nil
	case KindNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("provider: unknown provider %q", kind)
	}
}
