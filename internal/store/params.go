package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/tss-ch/mas004-databridge/internal/model"
)

// UpsertMeta installs or replaces a parameter's static metadata, keyed by
// its pkey (ptype+pid, already canonical).
func (s *Store) UpsertMeta(meta model.ParamMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketParamsMeta).Put([]byte(meta.PKey), data)
	})
	if err != nil {
		return fmt.Errorf("upsert param meta %s: %w", meta.PKey, err)
	}
	return nil
}

// GetMeta returns a parameter's static metadata, or nil if pkey is unknown.
func (s *Store) GetMeta(pkey string) (*model.ParamMeta, error) {
	var meta *model.ParamMeta
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketParamsMeta).Get([]byte(pkey))
		if data == nil {
			return nil
		}
		var m model.ParamMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		meta = &m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get param meta %s: %w", pkey, err)
	}
	return meta, nil
}

// GetValue returns the persisted current value for pkey, and whether one
// has ever been recorded.
func (s *Store) GetValue(pkey string) (string, bool, error) {
	var value string
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketParamsValue).Get([]byte(pkey))
		if data == nil {
			return nil
		}
		var pv model.ParamValue
		if err := json.Unmarshal(data, &pv); err != nil {
			return err
		}
		value, found = pv.Value, true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("get param value %s: %w", pkey, err)
	}
	return value, found, nil
}

// GetEffectiveValue resolves the current value, falling back to the
// metadata default, then to "0", per spec §4.8.
func (s *Store) GetEffectiveValue(pkey string) (string, error) {
	if v, ok, err := s.GetValue(pkey); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}
	meta, err := s.GetMeta(pkey)
	if err != nil {
		return "", err
	}
	if meta != nil && meta.Default != "" {
		return meta.Default, nil
	}
	return "0", nil
}

func (s *Store) putValue(tx *bbolt.Tx, pkey, value string) error {
	pv := model.ParamValue{PKey: pkey, Value: value, UpdatedTS: time.Now()}
	data, err := json.Marshal(pv)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketParamsValue).Put([]byte(pkey), data)
}

func inRange(value string, min, max *float64) model.NakKind {
	fv, err := strconv.ParseFloat(value, 64)
	if err != nil {
		// Non-numeric values (ASCII codec parameters) aren't range checked.
		return model.NakNone
	}
	if min != nil && fv < *min {
		return model.NakOutOfRange
	}
	if max != nil && fv > *max {
		return model.NakOutOfRange
	}
	return model.NakNone
}

// SetValue applies an operator/router-originated write: unknown pkeys,
// read-only parameters, and out-of-range values are all rejected. A
// successful write also advances the metadata default, matching the
// commissioning-mode behavior of the reference bridge.
func (s *Store) SetValue(pkey, value string) (model.NakKind, error) {
	meta, err := s.GetMeta(pkey)
	if err != nil {
		return model.NakNone, err
	}
	if meta == nil {
		return model.NakUnknownParam, nil
	}
	if meta.RW == model.RWRead || model.IsReadOnlyType(meta.PType) {
		return model.NakReadOnly, nil
	}
	if nak := inRange(value, meta.Min, meta.Max); nak != model.NakNone {
		return nak, nil
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := s.putValue(tx, pkey, value); err != nil {
			return err
		}
		meta.Default = value
		data, err := json.Marshal(*meta)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketParamsMeta).Put([]byte(pkey), data)
	})
	if err != nil {
		return model.NakNone, fmt.Errorf("set value %s: %w", pkey, err)
	}
	return model.NakNone, nil
}

// ApplyDeviceValue records a device-reported value (status, measurement,
// error code). Unlike SetValue it never blocks on RW, since read-only here
// governs operator writes, not inbound device status.
func (s *Store) ApplyDeviceValue(pkey, value string) (model.NakKind, error) {
	meta, err := s.GetMeta(pkey)
	if err != nil {
		return model.NakNone, err
	}
	if meta == nil {
		return model.NakUnknownParam, nil
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return s.putValue(tx, pkey, value)
	})
	if err != nil {
		return model.NakNone, fmt.Errorf("apply device value %s: %w", pkey, err)
	}
	return model.NakNone, nil
}

func normalizeRW(rw *model.RW, current model.RW) (model.RW, model.NakKind) {
	if rw == nil {
		return current, model.NakNone
	}
	v := strings.ToUpper(strings.TrimSpace(string(*rw)))
	if v == "RW" || v == "R_W" {
		v = "R/W"
	}
	switch model.RW(v) {
	case model.RWRead, model.RWWrite, model.RWReadWrite, model.RWNone:
		return model.RW(v), model.NakNone
	default:
		return current, model.NakBadRW
	}
}

// UpdateMeta edits a parameter's metadata (default, min/max, rw),
// consistency-checked per spec §4.8: min must not exceed max, rw must be
// R, W, R/W or empty (RW and R_W are accepted as R/W), and the resulting
// default must still fall in range.
func (s *Store) UpdateMeta(pkey string, defaultV *string, min, max *float64, rw *model.RW) (model.NakKind, error) {
	meta, err := s.GetMeta(pkey)
	if err != nil {
		return model.NakNone, err
	}
	if meta == nil {
		return model.NakUnknownParam, nil
	}

	newMin, newMax := meta.Min, meta.Max
	if min != nil {
		newMin = min
	}
	if max != nil {
		newMax = max
	}
	if newMin != nil && newMax != nil && *newMin > *newMax {
		return model.NakMinGreaterThanMax, nil
	}

	newRW, nak := normalizeRW(rw, meta.RW)
	if nak != model.NakNone {
		return nak, nil
	}

	newDefault := meta.Default
	if defaultV != nil {
		newDefault = *defaultV
	}
	if nak := inRange(newDefault, newMin, newMax); nak != model.NakNone {
		return model.NakDefaultOutOfRange, nil
	}

	meta.Min, meta.Max, meta.Default, meta.RW = newMin, newMax, newDefault, newRW
	if err := s.UpsertMeta(*meta); err != nil {
		return model.NakNone, err
	}
	return model.NakNone, nil
}

// GetDeviceMap returns the device wiring for pkey (line override, ZBC/
// Ultimate mapping), derived from its metadata.
func (s *Store) GetDeviceMap(pkey string) (model.DeviceMapping, bool, error) {
	meta, err := s.GetMeta(pkey)
	if err != nil {
		return model.DeviceMapping{}, false, err
	}
	if meta == nil {
		return model.DeviceMapping{}, false, nil
	}
	return meta.Mapping, true, nil
}

// ListParams returns metadata for every parameter, optionally filtered by
// ptype and a case-insensitive substring match on pkey/name, sorted by
// (ptype, pid).
func (s *Store) ListParams(ptype, q string) ([]model.ParamMeta, error) {
	var out []model.ParamMeta
	ql := strings.ToLower(q)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketParamsMeta).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m model.ParamMeta
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			if ptype != "" && m.PType != ptype {
				continue
			}
			if ql != "" && !strings.Contains(strings.ToLower(m.PKey), ql) && !strings.Contains(strings.ToLower(m.Name), ql) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list params: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PType != out[j].PType {
			return out[i].PType < out[j].PType
		}
		return out[i].PID < out[j].PID
	})
	return out, nil
}
