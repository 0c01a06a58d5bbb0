// Command dedupe removes duplicate (timestamp, imei) records left behind by
// imports that predate the unique composite index. The first document by
// insertion _id wins; the duplicates are equivalent under the key.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"avl-gateway/internal/config"
	"avl-gateway/internal/model"
	"avl-gateway/internal/observability"
	"avl-gateway/internal/store"
)

func main() {
	modemType := flag.String("type", model.DefaultModemType, "device type whose records collection to scan")
	dryRun := flag.Bool("dry-run", false, "report duplicates without deleting")
	flag.Parse()

	cfg := config.Load()
	logger := observability.NewLogger()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	st, err := store.Connect(ctx, cfg.MongoURI, cfg.DatabaseName, logger)
	if err != nil {
		logger.Error("store connect failed", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close(context.Background())

	removed, groups, err := dedupe(ctx, st, *modemType, *dryRun)
	if err != nil {
		logger.Error("dedupe failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("dedupe finished",
		zap.String("type", *modemType),
		zap.Int("duplicate_groups", groups),
		zap.Int64("removed", removed),
		zap.Bool("dry_run", *dryRun))
}

// dedupe groups records by (timestamp, imei), keeps the lowest _id of each
// group, and deletes the rest.
func dedupe(ctx context.Context, st *store.Store, modemType string, dryRun bool) (int64, int, error) {
	coll := st.RecordsCollection(modemType)

	pipeline := mongoPipeline()
	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}
	defer cur.Close(ctx)

	var removed int64
	groups := 0
	for cur.Next(ctx) {
		var group struct {
			IDs []primitive.ObjectID `bson:"ids"`
		}
		if err := cur.Decode(&group); err != nil {
			return removed, groups, err
		}
		groups++
		// ids arrive sorted ascending; index 0 is the keeper.
		extra := group.IDs[1:]
		if dryRun || len(extra) == 0 {
			removed += int64(len(extra))
			continue
		}
		res, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": extra}})
		if err != nil {
			return removed, groups, err
		}
		removed += res.DeletedCount
	}
	return removed, groups, cur.Err()
}

func mongoPipeline() []bson.M {
	return []bson.M{
		{"$sort": bson.M{"_id": 1}},
		{"$group": bson.M{
			"_id":   bson.M{"timestamp": "$timestamp", "imei": "$imei"},
			"ids":   bson.M{"$push": "$_id"},
			"count": bson.M{"$sum": 1},
		}},
		{"$match": bson.M{"count": bson.M{"$gt": 1}}},
	}
}
