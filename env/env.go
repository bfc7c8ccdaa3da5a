// Package env provides typed access to environment configuration. Values are
// read through viper so that defaults set at boot and values loaded from the
// process environment are handled uniformly.
package env

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var (
	mu          sync.Mutex
	validations = map[string]string{}
	validate    = validator.New()
)

// RegisterValidation registers a validation rule for an environment variable.
// Packages register their required variables in init so that a misconfigured
// deployment fails at startup rather than mid-request.
func RegisterValidation(key string, tags ...string) {
	mu.Lock()
	defer mu.Unlock()
	validations[key] = strings.Join(tags, ",")
}

// VarsLoaded validates every registered variable and panics with the full list
// of violations. Called once from server.Init after defaults are set.
func VarsLoaded() {
	mu.Lock()
	defer mu.Unlock()

	var violations []string
	for key, tags := range validations {
		if err := validate.Var(viper.Get(key), tags); err != nil {
			violations = append(violations, fmt.Sprintf("%s (%s): %s", key, tags, err))
		}
	}
	if len(violations) > 0 {
		panic("invalid environment:\n" + strings.Join(violations, "\n"))
	}
}

func GetString(key string) string {
	return viper.GetString(key)
}

func GetInt(key string) int {
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	return viper.GetInt64(key)
}

func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}
