package config

import (
	"os"
	"strconv"
)

type Features struct {
	AuthEnabled     bool
	BillingEnabled  bool
	OperatorEnabled bool
	SignupEnabled   bool
}

func LoadFeatures() Features {
	return Features{
		AuthEnabled:     envBool("AUTH_ENABLED", true),
		BillingEnabled:  envBool("BILLING_ENABLED", false),
		OperatorEnabled: envBool("OPERATOR_ENABLED", true),
		SignupEnabled:   envBool("SIGNUP_ENABLED", true),
	}
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
