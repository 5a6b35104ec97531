package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	sshsign "buildClient/internal/ssh"
)

const signatureScheme = "Signature"

// SignerFinder locates the SSH key used for signatures.
type SignerFinder interface {
	Find() (*sshsign.Signer, error)
}

// SignatureHandler answers a Signature challenge with an SSH signature over
// the creation time.
type SignatureHandler struct {
	user   string
	realm  string
	finder SignerFinder
	now    func() time.Time
}

// NewSignatureHandler creates the handler; realm overrides the namespace
// announced by the server.
func NewSignatureHandler(user, realm string, finder SignerFinder) *SignatureHandler {
	return &SignatureHandler{user: user, realm: realm, finder: finder, now: time.Now}
}

func (h *SignatureHandler) Name() string { return "signature" }

func (h *SignatureHandler) SetPreemptiveHeaders(context.Context, *http.Request) Result {
	return NotApplicable()
}

func (h *SignatureHandler) SetHeadersAfter401(_ context.Context, _ *http.Request, resp *http.Response) Result {
	challenge := FindChallenge(resp, signatureScheme)
	if challenge == nil || h.user == "" || h.finder == nil {
		return NotApplicable()
	}

	namespace := h.realm
	if namespace == "" {
		namespace = challenge.Params["realm"]
	}
	if namespace == "" {
		return Failed(errors.New("signature challenge has no realm"))
	}

	signer, err := h.finder.Find()
	if err != nil {
		if errors.Is(err, sshsign.ErrNoKey) {
			log.Debugf("signature authentication skipped: %v", err)
			return NotApplicable()
		}
		return Failed(err)
	}
	defer signer.Close()

	created := h.now().Unix()
	blob, err := signer.Sign(namespace, []byte(fmt.Sprintf("(created): %d", created)))
	if err != nil {
		return Failed(err)
	}

	value := fmt.Sprintf(`Signature keyId="%s",algorithm="ssh",headers="(created)",created=%d,signature="%s"`,
		h.user, created, base64.StdEncoding.EncodeToString(blob))
	return Applied(http.Header{"Authorization": {value}})
}

func (h *SignatureHandler) ProcessResponse(*http.Request, *http.Response) error {
	return nil
}
