package llm

import "context"

// NoticeFields is the normalized shape we want from the LLM.
// Text fields are "" when absent, numeric fields nil.
type NoticeFields struct {
	NoticeType            string   `json:"notice_type"`
	NoticeDescription     string   `json:"notice_description"` // 2-3 sentences, source language
	ServiceSector         string   `json:"service_sector"`
	ServiceGroup          string   `json:"service_group"`
	PositionTitle         string   `json:"position_title"`
	PositionLevel         string   `json:"position_level"`
	EmploymentType        string   `json:"employment_type"`
	OrganizationType      string   `json:"organization_type"`
	Province              string   `json:"province"`
	District              string   `json:"district"`
	Municipality          string   `json:"municipality"`
	WorkLocationType      string   `json:"work_location_type"`
	MinEducationLevel     string   `json:"min_education_level"`
	RequiredDegree        string   `json:"required_degree"`
	RequiredField         string   `json:"required_field"`
	RequiresLicense       bool     `json:"requires_license"`
	MinExperienceYears    *float64 `json:"min_experience_years"`
	RequiredCurrentLevel  string   `json:"required_current_level"`
	RequiredServiceYears  *float64 `json:"required_service_years"`
	MinAge                *float64 `json:"min_age"`
	MaxAge                *float64 `json:"max_age"`
	Gender                string   `json:"gender"`
	FamilyType            string   `json:"family_type"`
	NumberOfFamilyMembers *float64 `json:"number_of_family_members"`
	NumberOfChildren      *float64 `json:"number_of_children"`
	NumberOfElderly       *float64 `json:"number_of_elderly"`
	Deadline              string   `json:"deadline"` // YYYY-MM-DD or ""
	ContactPhone          string   `json:"contact_phone"`
	ContactEmail          string   `json:"contact_email"`
	SourceWard            string   `json:"source_ward"`
}

// TextGenerator is the model-serving collaborator: prompt in, text out.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// FieldExtractor is the interface our pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, ocrText string) (NoticeFields, []byte /*normalized JSON*/, error)
	Model() string
}
