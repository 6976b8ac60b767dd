// Package normalize splits expanded measurement rows into the method,
// profile and profile-layer tables and resolves the foreign keys between
// them.
package normalize

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/dedupe"
	"github.com/sells-group/soil-etl/internal/encmap"
	"github.com/sells-group/soil-etl/internal/metrics"
	"github.com/sells-group/soil-etl/internal/model"
)

// FK labels used in logs and metrics.
const (
	KeyProfile = "orgc_profile_id"
	KeyMethod  = "orgc_method_id"
)

// Stats describes one Tables call.
type Stats struct {
	MethodEntries      int // method rows before dedupe
	UnresolvedProfiles int
	UnresolvedMethods  int
	// AmbiguousProfiles counts profile ids shared by more than one profile
	// row. Layers referencing them bind to the first such row.
	AmbiguousProfiles int
}

// Tables builds the three output tables from rows. Rows must already be
// deduplicated and carry the reformatted date column.
func Tables(rows []model.ExpandedRow) (*model.Tables, Stats) {
	var stats Stats

	methods, entries := Methods(rows)
	stats.MethodEntries = entries
	profiles := Profiles(rows)

	layers, lstats := ProfileLayers(rows, profiles, methods)
	stats.UnresolvedProfiles = lstats.UnresolvedProfiles
	stats.UnresolvedMethods = lstats.UnresolvedMethods
	stats.AmbiguousProfiles = lstats.AmbiguousProfiles

	metrics.AddRows(model.TableMethod, len(methods))
	metrics.AddRows(model.TableProfile, len(profiles))
	metrics.AddRows(model.TableProfileLayer, len(layers))

	zap.L().With(zap.String("component", "normalize")).Info("tables normalized",
		zap.Int(model.TableMethod, len(methods)),
		zap.Int(model.TableProfile, len(profiles)),
		zap.Int(model.TableProfileLayer, len(layers)),
		zap.Int("unresolved_profiles", stats.UnresolvedProfiles),
		zap.Int("unresolved_methods", stats.UnresolvedMethods),
	)

	return &model.Tables{Methods: methods, Profiles: profiles, ProfileLayers: layers}, stats
}

// Methods re-parses each row's method encoding into one row per instance,
// deduplicates on (method_instance, encoding) and numbers the survivors
// from 1. It also returns the number of instance rows seen before dedupe.
func Methods(rows []model.ExpandedRow) ([]model.MethodRow, int) {
	parsed := make(map[string]encmap.MethodMap)
	var all []model.MethodRow

	for _, row := range rows {
		if row.MethodEncoding == nil {
			continue
		}
		enc := *row.MethodEncoding
		m, ok := parsed[enc]
		if !ok {
			m = encmap.Methods(row.MethodEncoding)
			parsed[enc] = m
		}
		for _, entry := range m.Entries {
			all = append(all, methodRow(entry, row.MethodEncoding))
		}
	}

	out := dedupe.Rows(all, []string{model.ColMethodInstance, model.ColMethod}, model.TableMethod)
	for i := range out {
		out[i].ID = int64(i + 1)
	}
	return out, len(all)
}

func methodRow(entry encmap.MethodEntry, encoding *string) model.MethodRow {
	m := model.MethodRow{
		MethodInstance: instance(entry.Key),
		Attributes:     make(map[string]string, len(model.MethodAttributes)),
		Encoding:       encoding,
	}
	for _, attr := range model.MethodAttributes {
		if v, ok := entry.Attribute(attr); ok {
			m.Attributes[attr] = v
		}
	}
	return m
}

// Profiles projects the profile columns, deduplicates on all of them and
// numbers the survivors from 1.
func Profiles(rows []model.ExpandedRow) []model.ProfileRow {
	all := make([]model.ProfileRow, len(rows))
	for i, row := range rows {
		all[i] = model.ProfileRow{
			ProfileID:   row.ProfileID,
			ProfileCode: row.ProfileCode,
			DatasetID:   row.DatasetID,
			Latitude:    row.Y,
			Longitude:   row.X,
			CountryName: row.CountryName,
		}
	}

	out := dedupe.Rows(all, nil, model.TableProfile)
	for i := range out {
		out[i].ID = int64(i + 1)
	}
	return out
}

// ProfileLayers projects one fact row per expanded row, replacing the
// profile identity and the (method_instance, encoding) pair with the
// surrogate ids of the matching profile and method rows. Lookups that find
// nothing leave the key null. Ids follow row position. Only the lookup
// fields of the returned Stats are set.
func ProfileLayers(rows []model.ExpandedRow, profiles []model.ProfileRow, methods []model.MethodRow) ([]model.ProfileLayerRow, Stats) {
	log := zap.L().With(zap.String("component", "normalize"))
	var counts Stats

	profileIdx := make(map[string]int64, len(profiles))
	for _, p := range profiles {
		k := dedupe.Key(p, model.ColProfileID)
		if _, dup := profileIdx[k]; dup {
			counts.AmbiguousProfiles++
			continue
		}
		profileIdx[k] = p.ID
	}
	if counts.AmbiguousProfiles > 0 {
		log.Warn("profile ids map to several profile rows, first row wins",
			zap.Int("ambiguous", counts.AmbiguousProfiles))
	}

	methodIdx := make(map[string]int64, len(methods))
	for _, m := range methods {
		methodIdx[dedupe.Key(m, model.ColMethodInstance, model.ColMethod)] = m.ID
	}

	out := make([]model.ProfileLayerRow, len(rows))
	for i, row := range rows {
		l := model.ProfileLayerRow{
			ID:             int64(i + 1),
			ProfileLayerID: row.ProfileLayerID,
			UpperDepth:     row.UpperDepth,
			LowerDepth:     row.LowerDepth,
			LayerName:      row.LayerName,
			Litter:         row.Litter,
			Value:          row.ValueForInstance,
			ValueAvg:       row.ValueAvg,
			Date:           row.DerivedValue(model.ColReformatDate),
		}

		if id, ok := profileIdx[dedupe.Key(row, model.ColProfileID)]; ok {
			l.ProfileFK = &id
		} else {
			counts.UnresolvedProfiles++
		}
		if id, ok := methodIdx[dedupe.Key(row, model.ColMethodInstance, model.ColMethod)]; ok {
			l.MethodFK = &id
		} else {
			counts.UnresolvedMethods++
		}
		out[i] = l
	}

	metrics.AddUnresolved(KeyProfile, counts.UnresolvedProfiles)
	metrics.AddUnresolved(KeyMethod, counts.UnresolvedMethods)
	if counts.UnresolvedProfiles+counts.UnresolvedMethods > 0 {
		log.Warn("foreign keys left null",
			zap.Int(KeyProfile, counts.UnresolvedProfiles),
			zap.Int(KeyMethod, counts.UnresolvedMethods),
		)
	}
	return out, counts
}

func instance(key string) *int64 {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
