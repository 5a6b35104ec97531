package auth

import (
	"context"
	"encoding/base64"
	"net/http"

	log "github.com/sirupsen/logrus"

	"buildClient/internal/models"
)

const basicScheme = "Basic"

// BasicHandler answers a Basic challenge with the configured password.
type BasicHandler struct {
	user     string
	password *models.Password
	// preferSignature skips passwords that would have to be prompted for.
	preferSignature bool
}

func NewBasicHandler(user string, password *models.Password, preferSignature bool) *BasicHandler {
	return &BasicHandler{user: user, password: password, preferSignature: preferSignature}
}

func (h *BasicHandler) Name() string { return "basic" }

func (h *BasicHandler) SetPreemptiveHeaders(context.Context, *http.Request) Result {
	return NotApplicable()
}

func (h *BasicHandler) SetHeadersAfter401(_ context.Context, _ *http.Request, resp *http.Response) Result {
	if FindChallenge(resp, basicScheme) == nil || h.user == "" || h.password == nil {
		return NotApplicable()
	}
	if h.password.Deferred() && h.preferSignature {
		log.Debugf("basic authentication skipped: no stored password and an ssh key is configured")
		return NotApplicable()
	}
	if !h.password.Deferred() && !h.password.Concrete() {
		return NotApplicable()
	}

	secret, err := h.password.Reveal()
	if err != nil {
		return Failed(err)
	}
	if secret == "" {
		return NotApplicable()
	}
	token := base64.StdEncoding.EncodeToString([]byte(h.user + ":" + secret))
	return Applied(http.Header{"Authorization": {"Basic " + token}})
}

func (h *BasicHandler) ProcessResponse(*http.Request, *http.Response) error {
	return nil
}
