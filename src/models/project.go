package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"promarket/src/types"
)

// ProjectVariant is a sub-offering with its own duration profile,
// selected by index at booking time.
type ProjectVariant struct {
	Title                 string             `json:"title"`
	Price                 float64            `json:"price"`
	ExecutionDuration     uint               `json:"execution_duration"`
	ExecutionDurationUnit types.DurationUnit `json:"execution_duration_unit"`
	BufferDuration        uint               `json:"buffer_duration,omitempty"`
	BufferDurationUnit    types.DurationUnit `json:"buffer_duration_unit,omitempty"`
}

type ProjectVariants []ProjectVariant

func (v ProjectVariants) Value() (driver.Value, error) {
	valueString, err := json.Marshal(v)
	return string(valueString), err
}
func (v *ProjectVariants) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, v)
}

type Project struct {
	ID             uint                `gorm:"primarykey" json:"id"`
	ProfessionalID uint                `json:"professional_id,omitempty"`
	Title          string              `json:"title,omitempty"`
	Slug           string              `json:"slug,omitempty"`
	Description    *string             `json:"description,omitempty"`
	Status         types.ProjectStatus `gorm:"default:'draft'" json:"status,omitempty"`
	Price          float64             `json:"price,omitempty"`
	Currency       string              `json:"currency,omitempty"`

	ExecutionDuration       uint               `json:"execution_duration,omitempty"`
	ExecutionDurationUnit   types.DurationUnit `gorm:"default:'days'" json:"execution_duration_unit,omitempty"`
	BufferDuration          uint               `json:"buffer_duration,omitempty"`
	BufferDurationUnit      types.DurationUnit `gorm:"default:'days'" json:"buffer_duration_unit,omitempty"`
	PreparationDuration     uint               `json:"preparation_duration,omitempty"`
	PreparationDurationUnit types.DurationUnit `gorm:"default:'days'" json:"preparation_duration_unit,omitempty"`

	// Resource ids (employees) fulfilling this project. When empty the
	// professional's own resource record is used.
	AssignedResources types.JSONBArray `gorm:"type:jsonb" json:"assigned_resources,omitempty"`
	MinResources      uint             `gorm:"default:1" json:"min_resources,omitempty"`
	Variants          ProjectVariants  `gorm:"type:jsonb" json:"variants,omitempty"`

	Professional *Professional `gorm:"foreignKey:professional_id" json:"-"`

	types.Timestamps
}
