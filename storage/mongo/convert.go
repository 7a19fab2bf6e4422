package mongo

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toRecord flattens a decoded document into values the dataset package
// understands. Decimal128 becomes its string form, which parses as a
// number; ObjectIDs become hex strings; nested documents are kept as is.
func toRecord(doc bson.M) map[string]any {
	rec := make(map[string]any, len(doc))
	for k, v := range doc {
		rec[k] = toValue(v)
	}
	return rec
}

func toValue(v interface{}) interface{} {
	switch x := v.(type) {
	case primitive.Decimal128:
		return x.String()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.DateTime:
		return x.Time().UTC().Format("2006-01-02T15:04:05Z")
	default:
		return v
	}
}
