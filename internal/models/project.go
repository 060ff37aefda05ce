package models

import "time"

// Project status lifecycle. Transitions are one-directional; there is no
// rollback path.
const (
	ProjectRequirements      = "requirements"
	ProjectRequirementsReady = "requirements_ready"
	ProjectEnvironmentsReady = "environments_ready"
	ProjectPaid              = "paid"
)

// Project is the aggregate root. Rows are owned by an external
// project-management collaborator; this core reads the status to gate
// operations and advances it as a side effect of successful ones.
type Project struct {
	ID                   string `gorm:"primaryKey;size:36"`
	Name                 string `gorm:"not null"`
	Status               string `gorm:"size:32;default:requirements;index"`
	GithubOwner          string `gorm:"size:128"`
	GithubRepo           string `gorm:"size:128"`
	GithubInstallationID int64
	OrganizationID       string `gorm:"size:36;index"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Sessions []ChatSession `gorm:"foreignKey:ProjectID"`
}

// ProjectStatusOrder maps each status to its position in the lifecycle.
var ProjectStatusOrder = map[string]int{
	ProjectRequirements:      0,
	ProjectRequirementsReady: 1,
	ProjectEnvironmentsReady: 2,
	ProjectPaid:              3,
}
