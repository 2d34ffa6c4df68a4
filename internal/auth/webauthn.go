package auth

import (
	"encoding/json"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/iohzrd/echora/internal/store"
)

// WebAuthnUser adapts a store.User plus its stored passkeys to the
// webauthn.User interface the ceremony functions require.
type WebAuthnUser struct {
	User     *store.User
	Passkeys []store.Passkey
}

func (u *WebAuthnUser) WebAuthnID() []byte         { return []byte(u.User.ID.String()) }
func (u *WebAuthnUser) WebAuthnName() string       { return u.User.Username }
func (u *WebAuthnUser) WebAuthnDisplayName() string { return u.User.Username }
func (u *WebAuthnUser) WebAuthnIcon() string        { return "" }

func (u *WebAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.Passkeys))
	for _, pk := range u.Passkeys {
		var cred webauthn.Credential
		if err := json.Unmarshal([]byte(pk.CredentialJSON), &cred); err != nil {
			continue
		}
		creds = append(creds, cred)
	}
	return creds
}

// NewWebAuthn builds the relying-party configuration used for both
// registration and authentication ceremonies.
func NewWebAuthn(rpID, rpOrigin, rpDisplayName string) (*webauthn.WebAuthn, error) {
	return webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpDisplayName,
		RPOrigins:     []string{rpOrigin},
	})
}

// PasskeyFromCredential converts a freshly registered credential into
// a row ready to persist, named by the caller-supplied label.
func PasskeyFromCredential(id uuid.UUID, userID uuid.UUID, name string, cred *webauthn.Credential, now int64) (*store.Passkey, error) {
	blob, err := json.Marshal(cred)
	if err != nil {
		return nil, err
	}
	return &store.Passkey{
		ID:             id,
		UserID:         userID,
		CredentialName: name,
		CredentialID:   string(cred.ID),
		CredentialJSON: string(blob),
		CreatedAt:      now,
	}, nil
}
