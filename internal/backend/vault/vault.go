package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hubconnect/internal/backend/models"
	"hubconnect/internal/crypto"
)

var (
	ErrEmptyToken       = errors.New("token must not be empty")
	ErrAlreadyEncrypted = errors.New("value is already encrypted")
	ErrInvalidSettings  = errors.New("settings must be a JSON document")
)

// VaultError is returned when a credential cannot be sealed or opened. An
// open failure means the credential is unusable and must be reconnected.
type VaultError struct {
	Op  string
	Err error
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("vault %s: %v", e.Op, e.Err)
}

func (e *VaultError) Unwrap() error { return e.Err }

// Secrets is the decrypted content of a Credential. It must not be logged.
type Secrets struct {
	Token    string
	BotToken string
	Settings string
}

// MaskedView is the display-safe projection of a Credential.
type MaskedView struct {
	MaskedToken    string          `json:"maskedToken"`
	MaskedBotToken string          `json:"maskedBotToken,omitempty"`
	Settings       json.RawMessage `json:"settings,omitempty"`
}

// Vault is the only component that sees plaintext tokens at rest.
type Vault struct {
	cipher crypto.Cipher
}

func New(cipher crypto.Cipher) *Vault {
	return &Vault{cipher: cipher}
}

// Store seals rawToken and the optional settings JSON into a new Credential.
func (v *Vault) Store(rawToken, rawSettings string) (*models.Credential, error) {
	cred := &models.Credential{}
	if err := v.ReplaceToken(cred, rawToken); err != nil {
		return nil, err
	}
	if err := v.ReplaceSettings(cred, rawSettings); err != nil {
		return nil, err
	}
	return cred, nil
}

// ReplaceToken seals rawToken into cred, overwriting the previous token.
func (v *Vault) ReplaceToken(cred *models.Credential, rawToken string) error {
	sealed, err := v.seal("store token", rawToken, true)
	if err != nil {
		return err
	}
	cred.AccessToken = sealed
	return nil
}

// ReplaceBotToken seals the optional bot token. An empty value clears it.
func (v *Vault) ReplaceBotToken(cred *models.Credential, rawBotToken string) error {
	sealed, err := v.seal("store bot token", rawBotToken, false)
	if err != nil {
		return err
	}
	cred.BotToken = sealed
	return nil
}

// ReplaceSettings seals a settings JSON document. An empty value clears it.
func (v *Vault) ReplaceSettings(cred *models.Credential, rawSettings string) error {
	rawSettings = strings.TrimSpace(rawSettings)
	if rawSettings != "" && !crypto.LooksEncrypted(rawSettings) && !json.Valid([]byte(rawSettings)) {
		return &VaultError{Op: "store settings", Err: ErrInvalidSettings}
	}

	sealed, err := v.seal("store settings", rawSettings, false)
	if err != nil {
		return err
	}
	cred.Settings = sealed
	return nil
}

func (v *Vault) seal(op, plaintext string, required bool) (string, error) {
	if plaintext == "" {
		if required {
			return "", &VaultError{Op: op, Err: ErrEmptyToken}
		}
		return "", nil
	}
	if crypto.LooksEncrypted(plaintext) {
		return "", &VaultError{Op: op, Err: ErrAlreadyEncrypted}
	}

	sealed, err := v.cipher.Encrypt(plaintext)
	if err != nil {
		return "", &VaultError{Op: op, Err: err}
	}
	return sealed, nil
}

// Reveal decrypts every secret of cred. Only outbound provider calls may use it.
func (v *Vault) Reveal(cred *models.Credential) (*Secrets, error) {
	if cred == nil || cred.AccessToken == "" {
		return nil, &VaultError{Op: "reveal", Err: errors.New("credential has no token")}
	}

	token, err := v.open("reveal token", cred.AccessToken)
	if err != nil {
		return nil, err
	}
	bot, err := v.open("reveal bot token", cred.BotToken)
	if err != nil {
		return nil, err
	}
	settings, err := v.open("reveal settings", cred.Settings)
	if err != nil {
		return nil, err
	}

	return &Secrets{Token: token, BotToken: bot, Settings: settings}, nil
}

// Project builds the display form of cred: masked tokens and decrypted settings.
func (v *Vault) Project(cred *models.Credential) (*MaskedView, error) {
	secrets, err := v.Reveal(cred)
	if err != nil {
		return nil, err
	}

	view := &MaskedView{MaskedToken: MaskToken(secrets.Token)}
	if secrets.BotToken != "" {
		view.MaskedBotToken = MaskToken(secrets.BotToken)
	}
	if secrets.Settings != "" {
		view.Settings = json.RawMessage(secrets.Settings)
	}
	return view, nil
}

func (v *Vault) open(op, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	plaintext, err := v.cipher.Decrypt(sealed)
	if err != nil {
		return "", &VaultError{Op: op, Err: err}
	}
	return plaintext, nil
}
