package datastore

import (
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mongo-bridge/internal/document"
)

// toBSON converts a value into the form the driver encodes. Integers that
// fit in 32 bits are sent as int32, matching what JavaScript drivers send
// for whole numbers.
func toBSON(v document.Value) interface{} {
	switch v.Kind() {
	case document.KindBool:
		b, _ := v.AsBool()
		return b
	case document.KindInt:
		i, _ := v.AsInt()
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i)
		}
		return i
	case document.KindFloat:
		f, _ := v.AsFloat()
		return f
	case document.KindString:
		s, _ := v.AsString()
		return s
	case document.KindTime:
		t, _ := v.AsTime()
		return primitive.NewDateTimeFromTime(t)
	case document.KindArray:
		items, _ := v.AsArray()
		out := make(bson.A, len(items))
		for i, item := range items {
			out[i] = toBSON(item)
		}
		return out
	case document.KindDocument:
		d, _ := v.AsDocument()
		return toBSONDoc(d)
	default:
		return nil
	}
}

func toBSONDoc(d *document.Document) bson.D {
	fields := d.Fields()
	out := make(bson.D, len(fields))
	for i, f := range fields {
		out[i] = bson.E{Key: f.Key, Value: toBSON(f.Value)}
	}
	return out
}

func toBSONPipeline(stages []*document.Document) bson.A {
	out := make(bson.A, len(stages))
	for i, stage := range stages {
		out[i] = toBSONDoc(stage)
	}
	return out
}

// fromBSON converts a decoded driver value back into a document.Value.
// Types without a JSON counterpart collapse to strings the way the
// JavaScript driver serialises them.
func fromBSON(x interface{}) document.Value {
	switch v := x.(type) {
	case nil:
		return document.Null()
	case bool:
		return document.Bool(v)
	case int32:
		return document.Int(int64(v))
	case int64:
		return document.Int(v)
	case int:
		return document.Int(int64(v))
	case float64:
		return document.Float(v)
	case float32:
		return document.Float(float64(v))
	case string:
		return document.String(v)
	case time.Time:
		return document.Time(v)
	case primitive.DateTime:
		return document.Time(v.Time())
	case primitive.Timestamp:
		return document.Time(time.Unix(int64(v.T), 0))
	case primitive.ObjectID:
		return document.String(v.Hex())
	case primitive.Decimal128:
		return document.String(v.String())
	case primitive.Binary:
		return document.String(base64.StdEncoding.EncodeToString(v.Data))
	case primitive.Regex:
		return document.String("/" + v.Pattern + "/" + v.Options)
	case primitive.Symbol:
		return document.String(string(v))
	case primitive.JavaScript:
		return document.String(string(v))
	case primitive.CodeWithScope:
		return document.String(string(v.Code))
	case primitive.Null, primitive.Undefined, primitive.MinKey, primitive.MaxKey:
		return document.Null()
	case bson.D:
		return document.Doc(fromBSONDoc(v))
	case bson.M:
		return document.Doc(fromBSONMap(v))
	case map[string]interface{}:
		return document.Doc(fromBSONMap(v))
	case bson.A:
		return fromBSONArray(v)
	case []interface{}:
		return fromBSONArray(v)
	default:
		return document.String(fmt.Sprintf("%v", v))
	}
}

func fromBSONDoc(d bson.D) *document.Document {
	out := document.New()
	for _, e := range d {
		out.Set(e.Key, fromBSON(e.Value))
	}
	return out
}

// fromBSONMap sorts keys because Go maps have no order.
func fromBSONMap(m map[string]interface{}) *document.Document {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := document.New()
	for _, k := range keys {
		out.Set(k, fromBSON(m[k]))
	}
	return out
}

func fromBSONArray(items []interface{}) document.Value {
	out := make([]document.Value, len(items))
	for i, item := range items {
		out[i] = fromBSON(item)
	}
	return document.Array(out...)
}
