// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

// RenderTemplate replaces every {{key}} in the template with data[key].
// Unknown placeholders are left as they are.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	return result
}

// LeadPlaceholders is the data a step template is rendered with.
func LeadPlaceholders(l *model.Lead) map[string]string {
	company := l.Company
	if company == "" {
		company = "your company"
	}
	return map[string]string{
		"name":       strings.TrimSpace(l.FirstName + " " + l.LastName),
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"company":    company,
		"phone":      l.Phone,
		"email":      l.Email,
	}
}
