package config

import (
	"fmt"
	"strconv"
)

// Migration upgrades a raw configuration document by one schema version.
// Migrations are pure functions of the document.
type Migration func(doc map[string]interface{}) error

// migrations is keyed by (from, to).
var migrations = map[[2]int]Migration{
	{1, 2}: migrateV1ToV2,
	{2, 3}: migrateV2ToV3,
}

// Migrate upgrades doc in place to CurrentVersion. A document without
// schema_version is treated as version 1.
func Migrate(doc map[string]interface{}) error {
	version := 1
	if v, ok := doc["schema_version"]; ok {
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("schema_version must be an integer, got %v", v)
		}
		version = n
	}
	if version > CurrentVersion {
		return fmt.Errorf("config schema version %d is newer than supported version %d", version, CurrentVersion)
	}

	for version < CurrentVersion {
		m, ok := migrations[[2]int{version, version + 1}]
		if !ok {
			return fmt.Errorf("no migration from schema version %d", version)
		}
		if err := m(doc); err != nil {
			return fmt.Errorf("migrate config v%d to v%d: %w", version, version+1, err)
		}
		version++
		doc["schema_version"] = version
	}
	return nil
}

// migrateV1ToV2 moves the flat budget fields into the budget section.
//
//	daily_budget_mb: 2048   ->  budget: {daily: 2048MiB}
//	segment_minutes: 15     ->  capture: {segment: 15m}
func migrateV1ToV2(doc map[string]interface{}) error {
	budget := section(doc, "budget")
	if v, ok := doc["daily_budget_mb"]; ok {
		mb, err := number(v)
		if err != nil {
			return fmt.Errorf("daily_budget_mb: %w", err)
		}
		budget["daily"] = strconv.FormatFloat(mb, 'f', -1, 64) + "MiB"
		delete(doc, "daily_budget_mb")
	}
	if v, ok := doc["active_hours"]; ok {
		budget["active_hours"] = v
		delete(doc, "active_hours")
	}
	if len(budget) > 0 {
		doc["budget"] = budget
	}

	if v, ok := doc["segment_minutes"]; ok {
		minutes, err := number(v)
		if err != nil {
			return fmt.Errorf("segment_minutes: %w", err)
		}
		capture := section(doc, "capture")
		capture["segment"] = fmt.Sprintf("%gm", minutes)
		doc["capture"] = capture
		delete(doc, "segment_minutes")
	}
	return nil
}

// migrateV2ToV3 replaces the single codec with a preference list and
// renames quality_level to quality.
func migrateV2ToV3(doc map[string]interface{}) error {
	if v, ok := doc["codec"]; ok {
		name, ok := v.(string)
		if !ok {
			return fmt.Errorf("codec must be a string, got %v", v)
		}
		codecs := []interface{}{name}
		for _, fallback := range []string{"h264", "mjpeg"} {
			if fallback != name {
				codecs = append(codecs, fallback)
			}
		}
		doc["codecs"] = codecs
		delete(doc, "codec")
	}
	if v, ok := doc["quality_level"]; ok {
		doc["quality"] = v
		delete(doc, "quality_level")
	}
	return nil
}

func section(doc map[string]interface{}, key string) map[string]interface{} {
	if m, ok := doc[key].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func number(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected a number, got %v", v)
	}
}
