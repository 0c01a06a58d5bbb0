package dispatcher

import (
	"context"
	"strings"
	"time"

	"avl-gateway/internal/codec"
	"avl-gateway/internal/store"
)

// getver asks the device for firmware and hardware identity. Typical reply:
// "Ver:03.28.07_05 GPS:AXN_5.10 Hw:FMC003 ..."
func init() {
	RegisterCommand(Command{
		Name:             "getver",
		Build:            func() []byte { return codec.BuildCodec12("getver") },
		Handler:          handleGetverResponse,
		DailyLimit:       3,
		SessionLimit:     1,
		MinRetryInterval: 10 * time.Minute,
		NeedsToRun: func(ctx context.Context, live *store.Live, imei string) bool {
			return live.GetString(ctx, "dev:"+imei+":fw") == ""
		},
	})
}

func handleGetverResponse(ctx context.Context, live *store.Live, imei, text string) {
	if !strings.Contains(text, "Ver:") {
		return
	}
	for _, field := range strings.Fields(text) {
		switch {
		case strings.HasPrefix(field, "Ver:"):
			live.SetString(ctx, "dev:"+imei+":fw", strings.TrimPrefix(field, "Ver:"))
		case strings.HasPrefix(field, "Hw:"):
			live.SetString(ctx, "dev:"+imei+":model", strings.TrimPrefix(field, "Hw:"))
		}
	}
}
