package model

type FilterMode string

const (
	// FilterModeDoctor lets the user pick the doctor; the clinic is fixed.
	FilterModeDoctor FilterMode = "doctor"
	// FilterModeClinic lets the user pick the clinic; the doctor is fixed.
	FilterModeClinic FilterMode = "clinic"
)

type FilterField string

const (
	FieldDoctor    FilterField = "doctor_id"
	FieldClinic    FilterField = "clinic_id"
	FieldTreatment FilterField = "treatment_type"
)

// FilterSettings is the configured shape of a selection form.
type FilterSettings struct {
	Mode                FilterMode `json:"mode" mapstructure:"mode"`
	DoctorID            string     `json:"doctor_id" mapstructure:"doctor_id"`
	ClinicID            string     `json:"clinic_id" mapstructure:"clinic_id"`
	TreatmentType       string     `json:"treatment_type" mapstructure:"treatment_type"`
	TreatmentSelectable bool       `json:"treatment_selectable" mapstructure:"treatment_selectable"`
}

type Selection struct {
	DoctorID      string `json:"doctor_id" form:"doctor_id"`
	ClinicID      string `json:"clinic_id" form:"clinic_id"`
	TreatmentType string `json:"treatment_type" form:"treatment_type"`
}

func (s Selection) Get(f FilterField) string {
	switch f {
	case FieldDoctor:
		return s.DoctorID
	case FieldClinic:
		return s.ClinicID
	case FieldTreatment:
		return s.TreatmentType
	}
	return ""
}

func (s *Selection) Set(f FilterField, v string) {
	switch f {
	case FieldDoctor:
		s.DoctorID = v
	case FieldClinic:
		s.ClinicID = v
	case FieldTreatment:
		s.TreatmentType = v
	}
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FilterOptions holds the valid choices per field. A nil slice means the
// field is fixed by configuration; an empty slice means nothing matches.
type FilterOptions struct {
	Mode       FilterMode `json:"mode"`
	Doctors    []Option   `json:"doctors"`
	Clinics    []Option   `json:"clinics"`
	Treatments []Option   `json:"treatments"`
	Selection  Selection  `json:"selection"`
}
