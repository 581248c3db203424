package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/veridocai/veridoc-backend/internal/platform/qdrant"
)

type VectorProvider string

const (
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderQdrant   VectorProvider = "qdrant"
	VectorProviderMemory   VectorProvider = "memory"
)

type VectorProviderConfigErrorCode string

const (
	VectorProviderConfigErrorInvalidProvider      VectorProviderConfigErrorCode = "invalid_provider"
	VectorProviderConfigErrorMissingQdrantURL     VectorProviderConfigErrorCode = "missing_qdrant_url"
	VectorProviderConfigErrorInvalidQdrantURL     VectorProviderConfigErrorCode = "invalid_qdrant_url"
	VectorProviderConfigErrorMissingQdrantColl    VectorProviderConfigErrorCode = "missing_qdrant_collection"
	VectorProviderConfigErrorMissingQdrantVector  VectorProviderConfigErrorCode = "missing_qdrant_vector_dim"
	VectorProviderConfigErrorInvalidQdrantVector  VectorProviderConfigErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderConfigErrorUnknownQdrantFailure VectorProviderConfigErrorCode = "qdrant_config_error"
)

type VectorProviderConfigError struct {
	Code     VectorProviderConfigErrorCode
	Provider VectorProvider
	Cause    error
}

func (e *VectorProviderConfigError) Error() string {
	if e == nil {
		return "invalid vector provider config"
	}
	return fmt.Sprintf(
		"invalid vector provider config (code=%s provider=%q): %v",
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *VectorProviderConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type VectorProviderConfig struct {
	Provider VectorProvider
	Source   string
	Qdrant   qdrant.Config
}

// resolveVectorProviderConfig picks the index backend from VECTOR_PROVIDER.
// When the variable is unset the in-memory store is used, so a bare
// development environment works without any vector database running.
func resolveVectorProviderConfig() (VectorProviderConfig, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("VECTOR_PROVIDER")))
	source := "env"
	if raw == "" {
		raw = string(VectorProviderMemory)
		source = "default"
	}

	switch VectorProvider(raw) {
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return VectorProviderConfig{}, mapVectorProviderConfigError(err)
		}
		return VectorProviderConfig{
			Provider: VectorProviderQdrant,
			Source:   source,
			Qdrant:   qcfg,
		}, nil
	case VectorProviderPinecone:
		return VectorProviderConfig{
			Provider: VectorProviderPinecone,
			Source:   source,
		}, nil
	case VectorProviderMemory:
		return VectorProviderConfig{
			Provider: VectorProviderMemory,
			Source:   source,
		}, nil
	default:
		return VectorProviderConfig{}, &VectorProviderConfigError{
			Code:     VectorProviderConfigErrorInvalidProvider,
			Provider: VectorProvider(raw),
			Cause:    fmt.Errorf("unsupported vector provider %q", raw),
		}
	}
}

func mapVectorProviderConfigError(err error) error {
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		code := VectorProviderConfigErrorUnknownQdrantFailure
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderConfigErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderConfigErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderConfigErrorMissingQdrantColl
		case qdrant.ConfigErrorMissingVectorDim:
			code = VectorProviderConfigErrorMissingQdrantVector
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderConfigErrorInvalidQdrantVector
		}
		return &VectorProviderConfigError{
			Code:     code,
			Provider: VectorProviderQdrant,
			Cause:    err,
		}
	}
	return &VectorProviderConfigError{
		Code:     VectorProviderConfigErrorUnknownQdrantFailure,
		Provider: VectorProviderQdrant,
		Cause:    err,
	}
}
