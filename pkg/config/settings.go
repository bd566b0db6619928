package config

import (
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/json"
)

// Settings are the connection settings sent by the host on Connect
type Settings struct {
	Username    string   `json:"Username" validate:"required"`
	Password    string   `json:"Password" validate:"required"`
	CompanyCode string   `json:"CompanyCode" validate:"required"`
	HomePath    string   `json:"HomePath" validate:"required"`
	ModulesList []string `json:"ModulesList"`
}

// rawSettings accepts the older User/Pwd field names
type rawSettings struct {
	Settings
	User string `json:"User"`
	Pwd  string `json:"Pwd"`
}

// ParseSettings decodes and validates the host's settings JSON. Decode
// failures and missing fields are validation errors.
func ParseSettings(settingsJSON string) (*Settings, error) {
	var raw rawSettings
	if err := json.Unmarshal([]byte(settingsJSON), &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "settings are not valid JSON")
	}

	s := raw.Settings
	if s.Username == "" {
		s.Username = raw.User
	}
	if s.Password == "" {
		s.Password = raw.Pwd
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports the first missing required field as
// "the <Field> property must be set".
func (s *Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("the %s property must be set", verrs[0].Field())).
			WithDetail("field", verrs[0].Field())
	}
	return errors.Wrap(err, errors.ErrorTypeValidation, "invalid settings")
}

// Modules returns the configured module list
func (s *Settings) Modules() []string {
	return append([]string(nil), s.ModulesList...)
}
