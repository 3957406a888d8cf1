package httperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
	personaservice "github.com/zhouzirui/mirror-persona/backend/internal/service/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/vision"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{session.ErrSessionNotFound, http.StatusNotFound},
		{session.ErrSessionEnded, http.StatusNotFound},
		{session.ErrSessionBusy, http.StatusConflict},
		{session.ErrReplyPending, http.StatusConflict},
		{session.ErrNoCharacter, http.StatusConflict},
		{session.ErrEmptyMessage, http.StatusBadRequest},
		{session.ErrAttributeRequired, http.StatusBadRequest},
		{llm.ErrCredentialRequired, http.StatusBadRequest},
		{fmt.Errorf("%w: denied", llm.ErrInvalidCredential), http.StatusUnauthorized},
		{fmt.Errorf("%w: dns", llm.ErrCredentialCheck), http.StatusBadGateway},
		{fmt.Errorf("%w: 503", personaservice.ErrSynthesis), http.StatusBadGateway},
		{fmt.Errorf("%w: 11MB", vision.ErrImageTooLarge), http.StatusRequestEntityTooLarge},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := Status(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}

func TestStatusMessages(t *testing.T) {
	_, msg := Status(fmt.Errorf("%w: API key not valid", llm.ErrInvalidCredential))
	assert.Equal(t, "Invalid API Key: API key not valid", msg)

	_, msg = Status(fmt.Errorf("%w: no such host", llm.ErrCredentialCheck))
	assert.Equal(t, "An error occurred during configuration: no such host", msg)

	_, msg = Status(errors.New("secret internals"))
	assert.Equal(t, "internal error", msg)
}
