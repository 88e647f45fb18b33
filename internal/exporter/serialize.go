// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package exporter

import (
	"context"
	"time"

	"cloud.google.com/go/datastore/apiv1/datastorepb"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/gae/service/datastore"
)

// Serialize encodes an entity, key included, as a datastore Entity proto.
func Serialize(pm datastore.PropertyMap) ([]byte, error) {
	ent, err := toEntityProto(pm)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(ent)
}

// Deserialize decodes an Entity proto written by Serialize. The key is
// rebuilt in the application and namespace of ctx.
func Deserialize(ctx context.Context, data []byte) (datastore.PropertyMap, error) {
	ent := &datastorepb.Entity{}
	if err := proto.Unmarshal(data, ent); err != nil {
		return nil, errors.Annotate(err, "unmarshal entity").Err()
	}
	return fromEntityProto(ctx, ent)
}

func toEntityProto(pm datastore.PropertyMap) (*datastorepb.Entity, error) {
	ent := &datastorepb.Entity{Properties: map[string]*datastorepb.Value{}}
	if key, ok := datastore.GetMetaDefault(pm, "key", nil).(*datastore.Key); ok && key != nil {
		ent.Key = toKeyProto(key)
	}
	for name, data := range pm {
		if len(name) > 0 && name[0] == '$' {
			continue
		}
		var v *datastorepb.Value
		var err error
		switch d := data.(type) {
		case datastore.Property:
			v, err = toValueProto(d)
		case datastore.PropertySlice:
			v, err = toArrayProto(d)
		default:
			err = errors.Reason("unexpected property data %T", data).Err()
		}
		if err != nil {
			return nil, errors.Annotate(err, "property %q", name).Err()
		}
		ent.Properties[name] = v
	}
	return ent, nil
}

func toKeyProto(key *datastore.Key) *datastorepb.Key {
	appID, ns, toks := key.Split()
	k := &datastorepb.Key{
		PartitionId: &datastorepb.PartitionId{ProjectId: appID, NamespaceId: ns},
	}
	for _, t := range toks {
		el := &datastorepb.Key_PathElement{Kind: t.Kind}
		if t.StringID != "" {
			el.IdType = &datastorepb.Key_PathElement_Name{Name: t.StringID}
		} else {
			el.IdType = &datastorepb.Key_PathElement_Id{Id: t.IntID}
		}
		k.Path = append(k.Path, el)
	}
	return k
}

func toArrayProto(ps datastore.PropertySlice) (*datastorepb.Value, error) {
	vals := make([]*datastorepb.Value, 0, len(ps))
	for _, p := range ps {
		v, err := toValueProto(p)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return &datastorepb.Value{
		ValueType: &datastorepb.Value_ArrayValue{ArrayValue: &datastorepb.ArrayValue{Values: vals}},
	}, nil
}

func toValueProto(p datastore.Property) (*datastorepb.Value, error) {
	v := &datastorepb.Value{ExcludeFromIndexes: p.IndexSetting() == datastore.NoIndex}
	switch p.Type() {
	case datastore.PTNull:
		v.ValueType = &datastorepb.Value_NullValue{NullValue: structpb.NullValue_NULL_VALUE}
	case datastore.PTBool:
		v.ValueType = &datastorepb.Value_BooleanValue{BooleanValue: p.Value().(bool)}
	case datastore.PTInt:
		v.ValueType = &datastorepb.Value_IntegerValue{IntegerValue: p.Value().(int64)}
	case datastore.PTFloat:
		v.ValueType = &datastorepb.Value_DoubleValue{DoubleValue: p.Value().(float64)}
	case datastore.PTTime:
		v.ValueType = &datastorepb.Value_TimestampValue{TimestampValue: timestamppb.New(p.Value().(time.Time))}
	case datastore.PTString:
		v.ValueType = &datastorepb.Value_StringValue{StringValue: p.Value().(string)}
	case datastore.PTBytes:
		v.ValueType = &datastorepb.Value_BlobValue{BlobValue: p.Value().([]byte)}
	case datastore.PTKey:
		v.ValueType = &datastorepb.Value_KeyValue{KeyValue: toKeyProto(p.Value().(*datastore.Key))}
	case datastore.PTPropertyMap:
		sub, err := toEntityProto(p.Value().(datastore.PropertyMap))
		if err != nil {
			return nil, err
		}
		v.ValueType = &datastorepb.Value_EntityValue{EntityValue: sub}
	default:
		return nil, errors.Reason("unsupported property type %s", p.Type()).Err()
	}
	return v, nil
}

func fromEntityProto(ctx context.Context, ent *datastorepb.Entity) (datastore.PropertyMap, error) {
	pm := datastore.PropertyMap{}
	if ent.GetKey() != nil {
		key, err := fromKeyProto(ctx, ent.GetKey())
		if err != nil {
			return nil, err
		}
		pm.SetMeta("key", key)
	}
	for name, v := range ent.GetProperties() {
		if arr := v.GetArrayValue(); arr != nil {
			ps := make(datastore.PropertySlice, 0, len(arr.GetValues()))
			for _, el := range arr.GetValues() {
				p, err := fromValueProto(ctx, el)
				if err != nil {
					return nil, errors.Annotate(err, "property %q", name).Err()
				}
				ps = append(ps, p)
			}
			pm[name] = ps
			continue
		}
		p, err := fromValueProto(ctx, v)
		if err != nil {
			return nil, errors.Annotate(err, "property %q", name).Err()
		}
		pm[name] = p
	}
	return pm, nil
}

func fromKeyProto(ctx context.Context, k *datastorepb.Key) (*datastore.Key, error) {
	if len(k.GetPath()) == 0 {
		return nil, errors.Reason("key has an empty path").Err()
	}
	toks := make([]datastore.KeyTok, 0, len(k.GetPath()))
	for _, el := range k.GetPath() {
		toks = append(toks, datastore.KeyTok{Kind: el.GetKind(), StringID: el.GetName(), IntID: el.GetId()})
	}
	return datastore.NewKeyToks(ctx, toks), nil
}

func fromValueProto(ctx context.Context, v *datastorepb.Value) (datastore.Property, error) {
	var val interface{}
	switch t := v.GetValueType().(type) {
	case nil, *datastorepb.Value_NullValue:
		val = nil
	case *datastorepb.Value_BooleanValue:
		val = t.BooleanValue
	case *datastorepb.Value_IntegerValue:
		val = t.IntegerValue
	case *datastorepb.Value_DoubleValue:
		val = t.DoubleValue
	case *datastorepb.Value_TimestampValue:
		val = t.TimestampValue.AsTime()
	case *datastorepb.Value_StringValue:
		val = t.StringValue
	case *datastorepb.Value_BlobValue:
		val = t.BlobValue
	case *datastorepb.Value_KeyValue:
		key, err := fromKeyProto(ctx, t.KeyValue)
		if err != nil {
			return datastore.Property{}, err
		}
		val = key
	case *datastorepb.Value_EntityValue:
		sub, err := fromEntityProto(ctx, t.EntityValue)
		if err != nil {
			return datastore.Property{}, err
		}
		val = sub
	default:
		return datastore.Property{}, errors.Reason("unsupported value %T", t).Err()
	}
	if v.GetExcludeFromIndexes() {
		return datastore.MkPropertyNI(val), nil
	}
	return datastore.MkProperty(val), nil
}
