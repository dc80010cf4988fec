package ports

import (
	"context"

	"cryptoSignalBot/internal/domain"
)

// Advisor produces free-text commentary on an indicator snapshot.
// Backends (ChatGPT, DeepSeek, ...) are interchangeable implementations.
type Advisor interface {
	Name() string
	Analyze(ctx context.Context, snapshot domain.IndicatorSnapshot) (*domain.Advisory, error)
}
