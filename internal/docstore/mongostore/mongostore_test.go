package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/MrJamesThe3rd/till/internal/docstore"
)

func TestFilterDoc(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)

	q := docstore.Query{Collection: "transactions"}.
		Where("date", docstore.OpGreaterEqual, start).
		Where("date", docstore.OpLessEqual, end).
		Where("businessId", docstore.OpEqual, "biz1")

	assert.Equal(t, bson.M{
		"date":       bson.M{"$gte": start, "$lte": end},
		"businessId": bson.M{"$eq": "biz1"},
	}, filterDoc(q.Filters))

	assert.Equal(t, bson.M{}, filterDoc(nil))
}

func TestUpdateDoc(t *testing.T) {
	u := updateDoc(docstore.Data{
		"name":       "Asha",
		"visitCount": docstore.Increment(1),
		"totalSpent": docstore.Increment(250),
		"payment":    docstore.Data{"advance": 100.0},
	})

	assert.Equal(t, bson.M{
		"$set": bson.M{"name": "Asha", "payment": bson.M{"advance": 100.0}},
		"$inc": bson.M{"visitCount": 1.0, "totalSpent": 250.0},
	}, u)

	assert.Equal(t, bson.M{"$inc": bson.M{"visitCount": 1.0}}, updateDoc(docstore.Data{"visitCount": docstore.Increment(1)}))
}

func TestFromBSON(t *testing.T) {
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	got := fromBSON(bson.M{
		"date":     primitive.NewDateTimeFromTime(at),
		"customer": bson.D{{Key: "name", Value: "Asha"}},
		"items":    bson.A{bson.M{"name": "Cake"}},
		"amount":   12.5,
	})

	assert.Equal(t, docstore.Data{
		"date":     at,
		"customer": docstore.Data{"name": "Asha"},
		"items":    []any{docstore.Data{"name": "Cake"}},
		"amount":   12.5,
	}, got)
}

func TestToDocument(t *testing.T) {
	doc := toDocument("customers", bson.M{"_id": "9876543210", "name": "Asha"})

	assert.Equal(t, docstore.Ref{Collection: "customers", ID: "9876543210"}, doc.Ref)
	assert.Equal(t, docstore.Data{"name": "Asha"}, doc.Data)
}
