package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/alexisbeaulieu97/profilestate/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern    = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	payloadIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*(?:\.[A-Za-z0-9_-]+)+$`)
	namespacePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(yamlTagName)

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("payload_id", func(fl validator.FieldLevel) bool {
			return payloadIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("namespace", func(fl validator.FieldLevel) bool {
			return namespacePattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidateConfig performs schema and cross-field validation on the manifest.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return apperrors.NewValidationError("config", "configuration is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		if first, exists := seen[p.ID]; exists {
			return apperrors.NewValidationError(fieldForProfile(i, "id"), fmt.Sprintf("duplicate profile id %q (first declared at profiles[%d])", p.ID, first), nil)
		}
		seen[p.ID] = i

		if err := ValidateProfile(p, i); err != nil {
			return err
		}
	}

	return nil
}

// ValidateProfile checks rules that depend on the profile's target state.
func ValidateProfile(p Profile, index int) error {
	if err := validatorInstance().Struct(p); err != nil {
		return convertValidationError(err)
	}

	switch p.State {
	case StateInstalled:
		if len(p.Content) == 0 {
			return apperrors.NewValidationError(fieldForProfile(index, "content"), "content is required when state is installed", nil)
		}
		itemIDs := make(map[string]int, len(p.Content))
		for j, item := range p.Content {
			field := fmt.Sprintf("%s[%d]", fieldForProfile(index, "content"), j)
			if _, ok := item["PayloadType"].(string); !ok {
				return apperrors.NewValidationError(field+".PayloadType", "payload items need a PayloadType string", nil)
			}
			itemID := payloadItemID(p.ID, j, item)
			if first, exists := itemIDs[itemID]; exists {
				return apperrors.NewValidationError(field+".PayloadIdentifier", fmt.Sprintf("duplicate payload identifier %q (first used by content[%d])", itemID, first), nil)
			}
			itemIDs[itemID] = j
		}
	case StateAbsent:
		if len(p.Content) > 0 {
			return apperrors.NewValidationError(fieldForProfile(index, "content"), "content is not allowed when state is absent", nil)
		}
	}

	return nil
}

// payloadItemID returns the identifier a content item is installed under;
// items without one are numbered after the profile.
func payloadItemID(profileID string, index int, item map[string]any) string {
	if id, ok := item["PayloadIdentifier"].(string); ok && id != "" {
		return id
	}
	return fmt.Sprintf("%s.%d", profileID, index)
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return apperrors.NewValidationError(field, msg, err)
	}

	return apperrors.NewValidationError("config", err.Error(), err)
}

// yamlishFieldName renders the failing field the way it is spelled in the
// manifest, e.g. config.settings.temp_namespace.
func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) > 0 {
		parts[0] = strings.ToLower(parts[0])
	}
	return strings.Join(parts, ".")
}

func yamlTagName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	}
	return name
}

func fieldForProfile(index int, field string) string {
	return fmt.Sprintf("profiles[%d].%s", index, field)
}
