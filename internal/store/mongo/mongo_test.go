package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"profittracker/internal/store"
)

func TestUpsertDocumentsKeepIdentityOnInsertOnly(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	rec := store.Record{ID: "id-1", Date: "2024-01-05", RealAccountProfit: 150, CreatedAt: now, UpdatedAt: now}

	filter, update := upsertDocuments(rec)
	if filter["date"] != "2024-01-05" {
		t.Fatalf("filter should match on date, got %v", filter)
	}

	set, ok := update["$set"].(bson.M)
	if !ok {
		t.Fatalf("missing $set: %v", update)
	}
	for _, key := range []string{"_id", "date", "created_at"} {
		if _, found := set[key]; found {
			t.Fatalf("$set must not overwrite %s", key)
		}
	}
	if set["real_account_profit"] != 150.0 {
		t.Fatalf("unexpected $set: %v", set)
	}

	onInsert, ok := update["$setOnInsert"].(bson.M)
	if !ok || onInsert["_id"] != "id-1" || onInsert["created_at"] != now {
		t.Fatalf("unexpected $setOnInsert: %v", update["$setOnInsert"])
	}
}

func TestRecordBSONTags(t *testing.T) {
	raw, err := bson.Marshal(store.Record{ID: "id-1", Date: "2024-01-05", PaperTradingPercentage: 0.8})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["_id"] != "id-1" || doc["paper_trading_percentage"] != 0.8 {
		t.Fatalf("unexpected document: %v", doc)
	}
}
