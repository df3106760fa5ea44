package uploads

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
)

const (
	// UploadPrefix is the object namespace raw catalog files are written to.
	UploadPrefix = "uploaded/"
	// uploadContentType is the only content type the credential permits.
	uploadContentType = "text/csv"
	// credentialTTL is the fixed lifetime of an issued credential.
	credentialTTL = time.Hour
)

// URLSigner signs a write URL for one object. *storage.BucketHandle
// satisfies this directly; tests substitute a fake.
type URLSigner interface {
	SignedURL(object string, opts *storage.SignedURLOptions) (string, error)
}

// UploadCredential is a short-lived, scoped authorization for one PUT of one
// object. Nothing is created in storage until the client uses it.
type UploadCredential struct {
	URL         string    `json:"url"`
	Method      string    `json:"method"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SignedURLIssuer issues upload credentials for the pipeline's intake bucket.
type SignedURLIssuer struct {
	signer URLSigner
	logger zerolog.Logger
	// now is swapped in tests for a fixed clock.
	now func() time.Time
}

// NewSignedURLIssuer creates an issuer around a bucket's URL signer.
func NewSignedURLIssuer(signer URLSigner, logger zerolog.Logger) (*SignedURLIssuer, error) {
	if signer == nil {
		return nil, errors.New("url signer cannot be nil")
	}
	return &SignedURLIssuer{
		signer: signer,
		logger: logger.With().Str("component", "SignedURLIssuer").Logger(),
		now:    time.Now,
	}, nil
}

// Issue returns a one-hour PUT credential for uploaded/<fileName>. The name
// must be a bare file name: empty names and names carrying path elements fail
// with catalog.ErrInvalidArgument before any storage call, so a credential can
// never address an object outside the uploaded/ namespace.
// Issuing is side-effect free and repeatable: two calls for the same name
// yield independent credentials for the same path.
func (i *SignedURLIssuer) Issue(fileName string) (*UploadCredential, error) {
	if fileName == "" {
		return nil, fmt.Errorf("%w: file name is required", catalog.ErrInvalidArgument)
	}
	if strings.ContainsAny(fileName, `/\`) || fileName == "." || fileName == ".." {
		return nil, fmt.Errorf("%w: file name %q must not contain path elements", catalog.ErrInvalidArgument, fileName)
	}

	objectName := UploadPrefix + fileName
	expiresAt := i.now().Add(credentialTTL)

	url, err := i.signer.SignedURL(objectName, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		ContentType: uploadContentType,
		Expires:     expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("sign upload url for %s: %w", objectName, err)
	}

	i.logger.Debug().Str("object", objectName).Time("expires_at", expiresAt).Msg("Issued upload credential")
	return &UploadCredential{
		URL:         url,
		Method:      "PUT",
		ContentType: uploadContentType,
		ExpiresAt:   expiresAt,
	}, nil
}
