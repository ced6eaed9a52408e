package llm

// Keys of the notice object, grouped by JSON type.
var (
	StringFieldKeys = []string{
		"notice_type", "notice_description", "service_sector", "service_group",
		"position_title", "position_level", "employment_type", "organization_type",
		"province", "district", "municipality", "work_location_type",
		"min_education_level", "required_degree", "required_field",
		"required_current_level", "gender", "family_type", "deadline",
		"contact_phone", "contact_email", "source_ward",
	}
	NumberFieldKeys = []string{
		"min_experience_years", "required_service_years", "min_age", "max_age",
		"number_of_family_members", "number_of_children", "number_of_elderly",
	}
	BoolFieldKeys = []string{"requires_license"}
)

// BuildNoticeJSONSchema returns the JSON-Schema for NoticeFields as a generic map.
// Every key is required; absence is expressed with "" / null / false.
func BuildNoticeJSONSchema() map[string]any {
	props := map[string]any{}
	for _, k := range StringFieldKeys {
		props[k] = map[string]any{"type": "string"}
	}
	for _, k := range NumberFieldKeys {
		props[k] = map[string]any{"type": []any{"number", "null"}, "minimum": 0}
	}
	for _, k := range BoolFieldKeys {
		props[k] = map[string]any{"type": "boolean"}
	}
	props["deadline"] = map[string]any{"type": "string", "pattern": `^(\d{4}-\d{2}-\d{2})?$`}

	required := make([]any, 0, len(props))
	for _, group := range [][]string{StringFieldKeys, NumberFieldKeys, BoolFieldKeys} {
		for _, k := range group {
			required = append(required, k)
		}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}
