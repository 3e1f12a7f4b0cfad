package implementation

import (
	"encoding/json"

	"llm-knowledge-be/internal/repository/specification"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// encodeFields turns map values into JSON columns so callers can pass
// entity-shaped values to column updates.
func encodeFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if m, ok := v.(map[string]interface{}); ok {
			raw, err := json.Marshal(m)
			if err == nil {
				out[k] = datatypes.JSON(raw)
				continue
			}
		}
		out[k] = v
	}
	return out
}
