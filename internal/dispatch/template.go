package dispatch

import "strings"

// RenderTemplate replaces {key} placeholders with their values. Unknown
// placeholders are left as they are.
func RenderTemplate(template string, data map[string]string) string {
	if !strings.Contains(template, "{") {
		return template
	}
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
