package llm

import (
	"fmt"
	"strings"
)

// fieldGuide lists every key with its vocabulary and type, in output order.
var fieldGuide = []struct{ key, guide string }{
	{"notice_type", "Type of notice: 'Job Vacancy', 'Tax Notice', 'Road Repair', 'Water Supply', 'Public Hearing', 'License Renewal', 'Social Welfare', 'Scholarship', 'Training', 'Other' (string)"},
	{"notice_description", "Brief 2-3 sentence summary of the notice in the same language as the document (string)"},
	{"service_sector", "Sector like 'Health', 'Education', 'Agriculture', 'Administration', 'Engineering', 'Finance', 'Social Welfare', 'Other' or empty string (string)"},
	{"service_group", "Service group if mentioned (e.g., 'Technical', 'Administrative', 'Medical') or empty string (string)"},
	{"position_title", "Job/position title if mentioned, otherwise empty string (string)"},
	{"position_level", "Position level/grade if mentioned (e.g., 'Officer Level', 'Assistant Level', '4th Level') or empty string (string)"},
	{"employment_type", "Type: 'Permanent', 'Contract', 'Temporary', 'Part-time' or empty string (string)"},
	{"organization_type", "Type: 'Government', 'Semi-Government', 'Private', 'NGO', 'INGO' or empty string (string)"},
	{"province", "Province name or number if mentioned, otherwise empty string (string)"},
	{"district", "District name if mentioned, otherwise empty string (string)"},
	{"municipality", "Municipality/Rural Municipality/Metropolitan name if mentioned, otherwise empty string (string)"},
	{"work_location_type", "Type: 'Urban', 'Rural', 'Remote' or empty string (string)"},
	{"min_education_level", "Minimum education: 'SLC/SEE', '+2/Intermediate', 'Bachelor', 'Master', 'PhD' or empty string (string)"},
	{"required_degree", "Specific degree required (e.g., 'MBBS', 'BE Civil', 'BBA') or empty string (string)"},
	{"required_field", "Field of study required (e.g., 'Engineering', 'Medicine', 'Management') or empty string (string)"},
	{"requires_license", "true if a professional license is required, false otherwise (boolean)"},
	{"min_experience_years", "Minimum years of experience required, otherwise null (number or null)"},
	{"required_current_level", "Current position level required to apply or empty string (string)"},
	{"required_service_years", "Years of service required, otherwise null (number or null)"},
	{"min_age", "Minimum age requirement, otherwise null (number or null)"},
	{"max_age", "Maximum age requirement, otherwise null (number or null)"},
	{"gender", "Required gender: 'Male', 'Female', 'Any' or empty string (string)"},
	{"family_type", "Family type requirement if mentioned (e.g., 'Joint', 'Nuclear') or empty string (string)"},
	{"number_of_family_members", "Required family members count, otherwise null (number or null)"},
	{"number_of_children", "Required number of children, otherwise null (number or null)"},
	{"number_of_elderly", "Required number of elderly in family, otherwise null (number or null)"},
	{"deadline", "Application deadline in YYYY-MM-DD format if mentioned, otherwise empty string (string)"},
	{"contact_phone", "Contact phone number if mentioned, otherwise empty string (string)"},
	{"contact_email", "Contact email if mentioned, otherwise empty string (string)"},
	{"source_ward", "Ward number if mentioned, otherwise empty string (string)"},
}

var rules = []string{
	"Return ONLY the JSON object, no additional text or markdown formatting.",
	"Do not include ```json or any code fences.",
	`Use null for missing numeric values, empty string "" for missing text values, false for requires_license when not stated.`,
	"Write every date as a Gregorian YYYY-MM-DD date. Convert Bikram Sambat (BS / वि.सं.) or any other non-Gregorian date to its Gregorian equivalent.",
	`If an age range is mentioned like "18-35 years", extract it as min_age: 18, max_age: 35.`,
	"Be conservative: only extract information explicitly stated in the text. Do not guess.",
	"For Nepali text, keep notice_description in Nepali.",
	"Use exactly the keys listed above and no others.",
}

// BuildNoticePrompt composes the single extraction instruction for one notice.
func BuildNoticePrompt(ocrText string) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant that extracts structured information from government notices in Nepal.\n\n")
	b.WriteString("The notice text below was produced by OCR (Nepali and English, may contain recognition noise).\n")
	b.WriteString("Extract the following fields and return ONLY a valid JSON object with these exact keys:\n\n{\n")
	for i, f := range fieldGuide {
		sep := ","
		if i == len(fieldGuide)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %q: %q%s\n", f.key, f.guide, sep)
	}
	b.WriteString("}\n\nIMPORTANT RULES:\n")
	for i, r := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	b.WriteString("\nNotice Text:\n")
	b.WriteString(ocrText)
	b.WriteString("\n")
	return b.String()
}
