package dto

import "github.com/hugh/go-roster/internal/validation"

type UpdateOrganizationRequest struct {
	Name    *string `json:"name,omitempty"`
	Palette *string `json:"palette,omitempty"`
}

func (r *UpdateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name != nil {
		if msg := validation.ValidateName("Name", *r.Name); msg != "" {
			errors["name"] = msg
		}
	}
	if r.Palette != nil {
		if ok, msg := validation.ValidatePalette(*r.Palette); !ok {
			errors["palette"] = msg
		}
	}

	return errors
}
