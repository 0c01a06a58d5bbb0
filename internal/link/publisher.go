// Package link fans normalized records out to NATS for downstream consumers.
// Mirrors the gateway's degraded-mode philosophy: with no NATS_URL configured
// the publisher is disabled and every call is a no-op.
package link

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"avl-gateway/internal/model"
	"avl-gateway/internal/store"
)

type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// Connect dials NATS, or returns (nil, nil) when url is empty. A nil
// *Publisher is valid and publishes nothing.
func Connect(url string, logger *zap.Logger) (*Publisher, error) {
	if url == "" {
		logger.Info("link: disabled (no NATS url configured)")
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("link: reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, logger: logger.With(zap.String("component", "link"))}, nil
}

// PublishRecord emits one record on records.<devicetype>. Publish failures
// are logged and dropped; the store remains the source of truth.
func (p *Publisher) PublishRecord(modemType string, rec *model.Record) {
	if p == nil {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	subject := "records." + store.CollectionType(modemType)
	if err := p.nc.Publish(subject, b); err != nil {
		p.logger.Warn("publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Drain()
	}
}
