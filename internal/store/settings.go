package store

import (
	"database/sql"
	"errors"
	"strconv"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// settingValidator checks a raw string value for one setting key, returning
// a non-nil error if the value is malformed or out of bounds.
type settingValidator func(value string) error

func boolValidator(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return storeerr.Wrapf(storeerr.ErrValidation, "must be a boolean, got %q", value)
	}
	return nil
}

// floatRangeValidator accepts values in (min, max], or [min, max] when
// minExclusive is false.
func floatRangeValidator(min, max float64, minExclusive bool) settingValidator {
	return func(value string) error {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return storeerr.Wrapf(storeerr.ErrValidation, "must be a number, got %q", value)
		}
		if minExclusive && f <= min {
			return storeerr.Wrapf(storeerr.ErrValidation, "must be greater than %v, got %v", min, f)
		}
		if !minExclusive && f < min {
			return storeerr.Wrapf(storeerr.ErrValidation, "must be at least %v, got %v", min, f)
		}
		if f > max {
			return storeerr.Wrapf(storeerr.ErrValidation, "must be at most %v, got %v", max, f)
		}
		return nil
	}
}

func intRangeValidator(min, max int64) settingValidator {
	return func(value string) error {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return storeerr.Wrapf(storeerr.ErrValidation, "must be an integer, got %q", value)
		}
		if n < min || n > max {
			return storeerr.Wrapf(storeerr.ErrValidation, "must be between %d and %d, got %d", min, max, n)
		}
		return nil
	}
}

func enumValidator(allowed ...string) settingValidator {
	return func(value string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return storeerr.Wrapf(storeerr.ErrValidation, "must be one of %v, got %q", allowed, value)
	}
}

func nonEmptyValidator(value string) error {
	if value == "" {
		return storeerr.Wrap(storeerr.ErrValidation, "must not be empty")
	}
	return nil
}

// settingValidators enumerates every recognized setting key per §4.5/§4.6/
// §9. Keys absent from this table are rejected: settings are mutated only
// through this component, so unknown keys are typos, not extensions.
var settingValidators = map[string]settingValidator{
	"scale_4k_to_1080p":    boolValidator,
	"bitrate_factor":       floatRangeValidator(0, 1, true),
	"bitrate_cap_1080p":    floatRangeValidator(0, 100, true),
	"bitrate_cap_720p":     floatRangeValidator(0, 100, true),
	"bitrate_cap_other":    floatRangeValidator(0, 100, true),
	"min_file_size_mb":     intRangeValidator(0, 100000),
	"crf_fallback":         intRangeValidator(0, 51),
	"max_bitrate_fallback": floatRangeValidator(0, 100, true),
	"buf_size_fallback":    floatRangeValidator(0, 100, true),
	"nvenc_preset":         nonEmptyValidator,
	"replace_uid":          intRangeValidator(0, 1<<31-1),
	"replace_gid":          intRangeValidator(0, 1<<31-1),
	"replace_mode":         nonEmptyValidator,
	"file_sort":            enumValidator(string(FileSortBitrateDesc), string(FileSortBitrateAsc), string(FileSortAlphabetical), string(FileSortRandom)),
	"library_priority":     enumValidator(string(LibraryPriorityAlphaAsc), string(LibraryPriorityAlphaDesc), string(LibraryPriorityRoundRobin)),
	"last_library_id":      intRangeValidator(1, 1<<63-1),
}

// replaceIdentity keys default to "leave unchanged" and are allowed to be
// empty even though their validator otherwise expects a populated value.
var settingAllowsEmpty = map[string]bool{
	"replace_uid":  true,
	"replace_gid":  true,
	"replace_mode": true,
}

// GetSetting returns the stored value for key.
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storeerr.Wrapf(storeerr.ErrNotFound, "setting %q not set", key)
	}
	if err != nil {
		return "", storeerr.Wrapf(storeerr.ErrStorage, "get setting %q: %v", key, err)
	}
	return value, nil
}

// GetSettingOrDefault returns the stored value, or def if unset.
func (db *DB) GetSettingOrDefault(key, def string) string {
	v, err := db.GetSetting(key)
	if err != nil {
		return def
	}
	return v
}

// SetSetting writes a key/value pair, centralizing the only mutation path
// for settings per the Setting entity contract (§3). Validated against
// settingValidators before the UPSERT.
func (db *DB) SetSetting(key, value string) error {
	validate, known := settingValidators[key]
	if !known {
		return storeerr.Wrapf(storeerr.ErrValidation, "unknown setting %q", key)
	}
	if value == "" && settingAllowsEmpty[key] {
		// leave-unchanged sentinel, skip the validator
	} else if err := validate(value); err != nil {
		return storeerr.Wrapf(storeerr.ErrValidation, "setting %q: %s", key, err.Error())
	}

	_, err := db.conn.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "set setting %q: %v", key, err)
	}
	return nil
}

// AllSettings returns every stored key/value pair.
func (db *DB) AllSettings() (map[string]string, error) {
	rows, err := db.conn.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list settings: %v", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list settings: %v", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
