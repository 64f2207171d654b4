package catgenie

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const (
	FormErrorAuth       = "auth"
	FormErrorConnection = "connection"
	FormErrorUnknown    = "unknown"
)

// ValidateEntry checks a name and refresh token with one device listing on
// a fresh client. On failure it returns the form error key alongside err.
func ValidateEntry(ctx context.Context, cfg Config, logger zerolog.Logger) (Devices, string, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return Devices{}, FormErrorUnknown, fmt.Errorf("name is required")
	}
	client, err := NewClient(cfg, logger)
	if err != nil {
		return Devices{}, FormErrorUnknown, err
	}

	devices, err := client.GetDevices(ctx)
	if err != nil {
		formErr := FormError(err)
		event := logger.Error()
		if formErr == FormErrorAuth {
			event = logger.Warn()
		}
		event.Err(err).Str("form_error", formErr).Msg("credential validation failed")
		return Devices{}, formErr, err
	}
	return devices, "", nil
}

// FormError maps a client error to the setup form's error key.
func FormError(err error) string {
	switch {
	case err == nil:
		return ""
	case IsAuthentication(err):
		return FormErrorAuth
	case IsCommunication(err):
		return FormErrorConnection
	default:
		return FormErrorUnknown
	}
}
