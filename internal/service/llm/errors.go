package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaigo "github.com/openai/openai-go/v3"
)

var (
	ErrCredentialRequired = errors.New("api key is required")
	ErrInvalidCredential  = errors.New("invalid api key")
	ErrCredentialCheck    = errors.New("api key configuration failed")
	ErrEmptyResponse      = errors.New("model returned empty text")
)

var credentialHints = []string{
	"api key", "api_key", "apikey", "invalid", "permission", "unauthorized", "unauthenticated", "forbidden",
}

// ClassifyCredentialError wraps a failed Ping as either ErrInvalidCredential
// (the vendor rejected the key) or ErrCredentialCheck (anything else).
func ClassifyCredentialError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCredentialRequired) || errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrCredentialCheck) {
		return err
	}

	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range credentialHints {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCredentialCheck, err)
}
