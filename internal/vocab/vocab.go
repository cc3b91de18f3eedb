// Package vocab translates between the backend's human-locale status and role
// strings and the canonical enums used everywhere else.
package vocab

import (
	"strings"

	"github.com/Glorc12/AirConditionerCompany/internal/models"
)

const (
	DefaultStatus = models.StatusOpen
	DefaultRole   = models.RoleOperator
)

var backendStatus = map[models.Status]string{
	models.StatusOpen:         "Новая заявка",
	models.StatusInProgress:   "В процессе ремонта",
	models.StatusWaitingParts: "Ожидание комплектующих",
	models.StatusDone:         "Завершена",
}

var statusLabels = map[models.Status]string{
	models.StatusOpen:         "Открыта",
	models.StatusInProgress:   "В ремонте",
	models.StatusWaitingParts: "Ожидание комплектующих",
	models.StatusDone:         "Завершена",
}

var backendRole = map[models.Role]string{
	models.RoleAdmin:          "Администратор",
	models.RoleOperator:       "Оператор",
	models.RoleSpecialist:     "Специалист",
	models.RoleQualityManager: "Менеджер по качеству",
	models.RoleCustomer:       "Заказчик",
}

var statusAliases = map[string]models.Status{
	"новая заявка":           models.StatusOpen,
	"открыта":                models.StatusOpen,
	"в процессе ремонта":     models.StatusInProgress,
	"в ремонте":              models.StatusInProgress,
	"ожидание комплектующих": models.StatusWaitingParts,
	"завершена":              models.StatusDone,
	"готова к выдаче":        models.StatusDone,
}

var roleAliases = map[string]models.Role{
	"администратор":        models.RoleAdmin,
	"оператор":             models.RoleOperator,
	"специалист":           models.RoleSpecialist,
	"мастер":               models.RoleSpecialist,
	"менеджер":             models.RoleQualityManager,
	"менеджер по качеству": models.RoleQualityManager,
	"заказчик":             models.RoleCustomer,
	"клиент":               models.RoleCustomer,
}

// ToCanonicalStatus never fails: unrecognized input maps to DefaultStatus.
func ToCanonicalStatus(value string) models.Status {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return DefaultStatus
	}
	if s := models.Status(v); s.Valid() {
		return s
	}
	if s, ok := statusAliases[v]; ok {
		return s
	}
	switch {
	case strings.Contains(v, "заверш") || strings.Contains(v, "готов") || strings.Contains(v, "выдач"):
		return models.StatusDone
	case strings.Contains(v, "ожидан") || strings.Contains(v, "комплект"):
		return models.StatusWaitingParts
	case strings.Contains(v, "ремонт") || strings.Contains(v, "процесс"):
		return models.StatusInProgress
	default:
		return DefaultStatus
	}
}

func ToBackendStatus(s models.Status) string {
	if v, ok := backendStatus[s]; ok {
		return v
	}
	return backendStatus[DefaultStatus]
}

// ToCanonicalRole never fails: unrecognized input maps to DefaultRole.
func ToCanonicalRole(value string) models.Role {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return DefaultRole
	}
	for _, r := range models.Roles {
		if string(r) == v {
			return r
		}
	}
	if r, ok := roleAliases[v]; ok {
		return r
	}
	switch {
	case strings.Contains(v, "админ"):
		return models.RoleAdmin
	case strings.Contains(v, "менеджер"):
		return models.RoleQualityManager
	case strings.Contains(v, "специалист") || strings.Contains(v, "мастер"):
		return models.RoleSpecialist
	case strings.Contains(v, "оператор"):
		return models.RoleOperator
	case strings.Contains(v, "заказчик") || strings.Contains(v, "клиент"):
		return models.RoleCustomer
	default:
		return DefaultRole
	}
}

func ToBackendRole(r models.Role) string {
	if v, ok := backendRole[r]; ok {
		return v
	}
	return backendRole[DefaultRole]
}

func StatusLabel(s models.Status) string {
	if v, ok := statusLabels[s]; ok {
		return v
	}
	return string(s)
}

func RoleTitle(r models.Role) string {
	if v, ok := backendRole[r]; ok {
		return v
	}
	return "—"
}
