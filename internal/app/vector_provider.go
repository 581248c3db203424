package app

import (
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"github.com/veridocai/veridoc-backend/internal/platform/logger"
	"github.com/veridocai/veridoc-backend/internal/platform/memvec"
	"github.com/veridocai/veridoc-backend/internal/platform/pinecone"
	"github.com/veridocai/veridoc-backend/internal/platform/qdrant"
)

var (
	newPineconeClient      = pinecone.New
	newPineconeVectorStore = pinecone.NewVectorStore
	newQdrantVectorStore   = qdrant.NewVectorStore
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider     VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL    VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL    VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorMissingQdrantVector VectorProviderBootstrapErrorCode = "missing_qdrant_vector_dim"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorQdrantConfigFailed  VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorMissingAPIKey       VectorProviderBootstrapErrorCode = "missing_api_key"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed  VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf(
		"vector provider bootstrap failed (code=%s provider=%q): %v",
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func resolveVectorStoreProvider(
	log *logger.Logger,
	cfg VectorProviderConfig,
) (pinecone.VectorStore, error) {
	provider := string(cfg.Provider)

	switch cfg.Provider {
	case VectorProviderQdrant:
		log.Info(
			"Selecting vector store provider",
			"provider", provider,
			"provider_source", cfg.Source,
			"qdrant_url", cfg.Qdrant.URL,
			"qdrant_collection", cfg.Qdrant.Collection,
			"qdrant_namespace_prefix", cfg.Qdrant.NamespacePrefix,
			"qdrant_vector_dim", cfg.Qdrant.VectorDim,
		)

		vs, err := newQdrantVectorStore(log, qdrant.Config{
			URL:             strings.TrimSpace(cfg.Qdrant.URL),
			Collection:      strings.TrimSpace(cfg.Qdrant.Collection),
			NamespacePrefix: strings.TrimSpace(cfg.Qdrant.NamespacePrefix),
			VectorDim:       cfg.Qdrant.VectorDim,
		})
		if err != nil {
			classified := classifyVectorProviderBootstrapError(provider, err)
			log.Error(
				"Vector store provider bootstrap failed",
				"provider", provider,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, classified
		}
		return vs, nil

	case VectorProviderPinecone:
		log.Info(
			"Selecting vector store provider",
			"provider", provider,
			"provider_source", cfg.Source,
		)

		apiKey := strings.TrimSpace(os.Getenv("PINECONE_API_KEY"))
		if apiKey == "" {
			err := &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingAPIKey,
				Provider: provider,
				Cause:    fmt.Errorf("PINECONE_API_KEY not set"),
			}
			log.Error(
				"Vector store provider bootstrap failed",
				"provider", provider,
				"error_code", err.Code,
				"error", err,
			)
			return nil, err
		}

		pc, err := newPineconeClient(log, pinecone.Config{
			APIKey:     apiKey,
			APIVersion: strings.TrimSpace(os.Getenv("PINECONE_API_VERSION")),
			BaseURL:    strings.TrimSpace(os.Getenv("PINECONE_BASE_URL")),
			Timeout:    30 * time.Second,
		})
		if err != nil {
			classified := classifyVectorProviderBootstrapError(provider, err)
			log.Error(
				"Vector store provider bootstrap failed",
				"provider", provider,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, classified
		}

		vs, err := newPineconeVectorStore(log, pc)
		if err != nil {
			classified := classifyVectorProviderBootstrapError(provider, err)
			log.Error(
				"Vector store provider bootstrap failed",
				"provider", provider,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, classified
		}
		return vs, nil

	case VectorProviderMemory:
		log.Info(
			"Selecting vector store provider",
			"provider", provider,
			"provider_source", cfg.Source,
		)
		vs, err := memvec.NewStore(log)
		if err != nil {
			classified := classifyVectorProviderBootstrapError(provider, err)
			return nil, classified
		}
		return vs, nil

	default:
		err := &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
		log.Error(
			"Vector store provider selection failed",
			"provider", provider,
			"error_code", err.Code,
			"error", err,
		)
		return nil, err
	}
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorConnectFailed,
			Provider: provider,
			Cause:    err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorConnectFailed,
			Provider: provider,
			Cause:    err,
		}
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorConnectFailed,
			Provider: provider,
			Cause:    err,
		}
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		code := VectorProviderBootstrapErrorQdrantConfigFailed
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderBootstrapErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderBootstrapErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderBootstrapErrorMissingQdrantColl
		case qdrant.ConfigErrorMissingVectorDim:
			code = VectorProviderBootstrapErrorMissingQdrantVector
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderBootstrapErrorInvalidQdrantVector
		}
		return &VectorProviderBootstrapError{
			Code:     code,
			Provider: provider,
			Cause:    err,
		}
	}

	return &VectorProviderBootstrapError{
		Code:     VectorProviderBootstrapErrorProviderInitFailed,
		Provider: provider,
		Cause:    err,
	}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return VectorProviderBootstrapErrorProviderInitFailed
}
