package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

const maskedValue = "***"

var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"authorization",
}

// MaskingHook replaces the values of sensitive fields before an entry is formatted
type MaskingHook struct{}

// NewMaskingHook creates a hook that masks sensitive fields on every level
func NewMaskingHook() *MaskingHook {
	return &MaskingHook{}
}

// Levels implements logrus.Hook
func (h *MaskingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook. The entry is a per-call copy so its data can be rewritten.
func (h *MaskingHook) Fire(entry *logrus.Entry) error {
	for key := range entry.Data {
		if isSensitiveKey(key) {
			entry.Data[key] = maskedValue
		}
	}
	return nil
}

func isSensitiveKey(key string) bool {
	for _, sensitive := range sensitiveKeys {
		if strings.EqualFold(key, sensitive) {
			return true
		}
	}
	return false
}
