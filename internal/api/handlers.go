package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"avl-gateway/internal/analyzer"
	"avl-gateway/internal/model"
	"avl-gateway/internal/store"
)

// Trips are synthesized over this many days of history.
const tripWindowDays = 7

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

/* ----------------------------- devices ----------------------------- */

func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		h.serverError(c, "list devices", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": devices})
}

func (h *Handler) GetDevice(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dev})
}

func (h *Handler) CreateDevice(c *gin.Context) {
	var req struct {
		Imei        string `json:"imei"`
		ModemType   string `json:"modemType"`
		CarBrand    string `json:"carBrand"`
		CarModel    string `json:"carModel"`
		PlateNumber string `json:"plateNumber"`
		Notes       string `json:"notes"`
		Approved    bool   `json:"approved"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if !model.ValidImei(req.Imei) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imei must be 15 digits"})
		return
	}

	dev := &model.Device{
		Imei:        req.Imei,
		ModemType:   req.ModemType,
		CarBrand:    req.CarBrand,
		CarModel:    req.CarModel,
		PlateNumber: req.PlateNumber,
		Notes:       req.Notes,
		Approved:    req.Approved,
	}
	err := h.store.CreateDevice(c.Request.Context(), dev)
	if errors.Is(err, store.ErrExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "device already exists"})
		return
	}
	if err != nil {
		h.serverError(c, "create device", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": dev})
}

func (h *Handler) UpdateDevice(c *gin.Context) {
	var req struct {
		CarBrand    *string `json:"carBrand"`
		CarModel    *string `json:"carModel"`
		PlateNumber *string `json:"plateNumber"`
		Notes       *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	fields := map[string]interface{}{}
	if req.CarBrand != nil {
		fields["carBrand"] = *req.CarBrand
	}
	if req.CarModel != nil {
		fields["carModel"] = *req.CarModel
	}
	if req.PlateNumber != nil {
		fields["plateNumber"] = *req.PlateNumber
	}
	if req.Notes != nil {
		fields["notes"] = *req.Notes
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields in body"})
		return
	}

	dev, err := h.store.UpdateDevice(c.Request.Context(), c.Param("imei"), fields)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err != nil {
		h.serverError(c, "update device", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dev})
}

func (h *Handler) ApproveDevice(c *gin.Context) {
	req := struct {
		Approved *bool `json:"approved"`
	}{}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}

	dev, err := h.store.SetApproved(c.Request.Context(), c.Param("imei"), approved)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err != nil {
		h.serverError(c, "approve device", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dev})
}

func (h *Handler) DeleteDevice(c *gin.Context) {
	err := h.store.DeleteDevice(c.Request.Context(), c.Param("imei"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err != nil {
		h.serverError(c, "delete device", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

/* ----------------------------- records ----------------------------- */

func (h *Handler) ListRecords(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 100, 1000)
	skip := queryInt(c, "skip", 0, 1<<31)

	recs, err := h.store.FindRecent(c.Request.Context(), dev.ModemType, dev.Imei, limit, skip)
	if err != nil {
		h.serverError(c, "list records", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs, "count": len(recs)})
}

func (h *Handler) LatestRecord(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	rec, err := h.store.FindLatest(c.Request.Context(), dev.ModemType, dev.Imei)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no records"})
		return
	}
	if err != nil {
		h.serverError(c, "latest record", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (h *Handler) RecordsRange(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	from, to := c.Query("from"), c.Query("to")
	if _, err := time.Parse(time.RFC3339, from); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be ISO-8601"})
		return
	}
	if _, err := time.Parse(time.RFC3339, to); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be ISO-8601"})
		return
	}

	recs, err := h.store.FindRange(c.Request.Context(), dev.ModemType, dev.Imei, canonical(from), canonical(to))
	if err != nil {
		h.serverError(c, "records range", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs, "count": len(recs)})
}

func (h *Handler) ListRaw(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 50, 500)

	frames, err := h.store.FindRaw(c.Request.Context(), dev.ModemType, dev.Imei, limit)
	if err != nil {
		h.serverError(c, "list raw", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": frames, "count": len(frames)})
}

func (h *Handler) Stats(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	total, err := h.store.CountRecords(ctx, dev.ModemType, dev.Imei)
	if err != nil {
		h.serverError(c, "stats", err)
		return
	}
	midnight := time.Now().UTC().Truncate(24 * time.Hour).Format(model.TimestampLayout)
	today, err := h.store.CountSince(ctx, dev.ModemType, dev.Imei, midnight)
	if err != nil {
		h.serverError(c, "stats", err)
		return
	}

	out := gin.H{
		"imei":         dev.Imei,
		"totalRecords": total,
		"recordsToday": today,
		"lastSeen":     dev.LastSeen,
	}

	// Live snapshot from Redis when warm, store fallback otherwise.
	if st, hit := h.live.GetLastState(ctx, dev.Imei); hit {
		out["lastPosition"] = gin.H{"latitude": st.Latitude, "longitude": st.Longitude}
		out["lastIgnition"] = st.Ignition
		out["lastSpeed"] = st.Speed
		out["lastTimestamp"] = st.Timestamp
	} else if rec, err := h.store.FindLatest(ctx, dev.ModemType, dev.Imei); err == nil {
		ign, _ := rec.Int("ignition")
		out["lastPosition"] = gin.H{"latitude": rec.GPS.Latitude, "longitude": rec.GPS.Longitude}
		out["lastIgnition"] = ign
		out["lastSpeed"] = rec.GPS.Speed
		out["lastTimestamp"] = rec.Timestamp
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}

/* ------------------------- trips and summaries ------------------------- */

func (h *Handler) Trips(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	limit := int(queryInt(c, "limit", 20, 100))

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -tripWindowDays).Format(model.TimestampLayout)
	to := now.Format(model.TimestampLayout)

	recs, err := h.store.FindRange(c.Request.Context(), dev.ModemType, dev.Imei, from, to)
	if err != nil {
		h.serverError(c, "trips", err)
		return
	}

	trips := analyzer.SegmentTrips(recs)
	// Newest first, clipped to limit.
	for i, j := 0, len(trips)-1; i < j; i, j = i+1, j-1 {
		trips[i], trips[j] = trips[j], trips[i]
	}
	if len(trips) > limit {
		trips = trips[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"data": trips, "count": len(trips)})
}

func (h *Handler) Daily(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	date := c.Param("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	summary, err := h.buildDaily(c, dev, date)
	if err != nil {
		h.serverError(c, "daily", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (h *Handler) DailyRange(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	from, errFrom := time.Parse("2006-01-02", c.Query("from"))
	to, errTo := time.Parse("2006-01-02", c.Query("to"))
	if errFrom != nil || errTo != nil || to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be YYYY-MM-DD, from <= to"})
		return
	}
	if to.Sub(from) > 31*24*time.Hour {
		c.JSON(http.StatusBadRequest, gin.H{"error": "range limited to 31 days"})
		return
	}

	summaries := []*analyzer.DailySummary{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		s, err := h.buildDaily(c, dev, d.Format("2006-01-02"))
		if err != nil {
			h.serverError(c, "daily range", err)
			return
		}
		summaries = append(summaries, s)
	}
	c.JSON(http.StatusOK, gin.H{"data": summaries, "count": len(summaries)})
}

func (h *Handler) buildDaily(c *gin.Context, dev *model.Device, date string) (*analyzer.DailySummary, error) {
	from := date + "T00:00:00.000Z"
	to := date + "T23:59:59.999Z"
	recs, err := h.store.FindRange(c.Request.Context(), dev.ModemType, dev.Imei, from, to)
	if err != nil {
		return nil, err
	}
	return analyzer.Daily(date, analyzer.SegmentTrips(recs)), nil
}

/* ----------------------------- helpers ----------------------------- */

// lookupDevice resolves :imei or answers 404/500 itself.
func (h *Handler) lookupDevice(c *gin.Context) (*model.Device, bool) {
	imei := c.Param("imei")
	dev, err := h.store.GetDevice(c.Request.Context(), imei)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return nil, false
	}
	if err != nil {
		h.serverError(c, "get device", err)
		return nil, false
	}
	return dev, true
}

func (h *Handler) serverError(c *gin.Context, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, name string, def, max int64) int64 {
	v, err := strconv.ParseInt(c.DefaultQuery(name, strconv.FormatInt(def, 10)), 10, 64)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// canonical re-renders an RFC 3339 timestamp in the record layout so string
// range comparisons line up.
func canonical(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format(model.TimestampLayout)
}
