// Package dispatcher routes decoded frames into persistence and fans
// normalized records out to the optional NATS link. It also owns the
// operator-enabled Codec 12 command flow.
package dispatcher

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"avl-gateway/internal/link"
	"avl-gateway/internal/model"
	"avl-gateway/internal/normalize"
	"avl-gateway/internal/observability"
	"avl-gateway/internal/session"
	"avl-gateway/internal/store"
	"avl-gateway/internal/utilities"
)

type Dispatcher struct {
	store     *store.Store
	live      *store.Live
	publisher *link.Publisher
	logger    *zap.Logger
	logsDir   string
}

func New(st *store.Store, live *store.Live, pub *link.Publisher, logsDir string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:     st,
		live:      live,
		publisher: pub,
		logger:    logger.With(zap.String("component", "dispatcher")),
		logsDir:   logsDir,
	}
}

// ProcessInbound persists one acknowledged frame: raw capture first, then the
// normalized records. The ack is already on the wire; store failures here are
// logged and absorbed — the device retransmits anything it never saw acked.
func (d *Dispatcher) ProcessInbound(ctx context.Context, sess *session.Session, in session.Inbound) {
	rawHex := hex.EncodeToString(in.Frame)
	utilities.CreateLog(d.logsDir, "rawframes", sess.Imei+" "+rawHex)

	if d.store == nil {
		// Degraded mode: no healthy store, capture logs only.
		return
	}

	raw := &model.RawFrame{
		Imei:      sess.Imei,
		Vin:       sess.Vin,
		ModemType: sess.DeviceType,
		RawHex:    rawHex,
		Timestamp: time.Now().UTC(),
	}
	if err := d.store.InsertRaw(ctx, sess.DeviceType, raw); err != nil {
		observability.StoreErrors.Inc()
		d.logger.Error("raw insert failed", zap.String("imei", sess.Imei), zap.Error(err))
	}

	vin := sess.Vin
	for i := range in.Packet.Records {
		rec := normalize.Record(sess.Imei, &in.Packet.Records[i])
		if v, ok := normalize.Vin(&rec); ok {
			vin = v
		}
		if err := d.store.InsertRecord(ctx, sess.DeviceType, &rec); err != nil {
			observability.StoreErrors.Inc()
			d.logger.Error("record insert failed",
				zap.String("imei", sess.Imei),
				zap.String("timestamp", rec.Timestamp),
				zap.Error(err))
			continue
		}
		observability.RecordsPersisted.Inc()

		ign, _ := rec.Int("ignition")
		d.live.SetLastState(ctx, sess.Imei, store.LastState{
			Latitude:  rec.GPS.Latitude,
			Longitude: rec.GPS.Longitude,
			Speed:     rec.GPS.Speed,
			Ignition:  int(ign),
			Timestamp: rec.Timestamp,
		})
		d.publisher.PublishRecord(sess.DeviceType, &rec)
	}

	if vin != "" && vin != sess.Vin {
		sess.Vin = vin
	}
	if err := d.store.TouchLastSeen(ctx, sess.Imei, vin); err != nil {
		d.logger.Warn("lastSeen update failed", zap.String("imei", sess.Imei), zap.Error(err))
	}
}

// HandleCommandResponse routes a Codec 12 response text to the registered
// command handlers.
func (d *Dispatcher) HandleCommandResponse(ctx context.Context, imei, text string) {
	utilities.CreateLog(d.logsDir, "commands", imei+" "+text)
	handleResponses(ctx, d.live, imei, text)
}
