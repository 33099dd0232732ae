package script

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Keyring holds the trusted OpenPGP public keys a sandbox checks script
// signatures against. Loaded once by the host (typically from a keyring
// file via LoadKeyring) and shared across sandboxes.
type Keyring struct {
	entities openpgp.EntityList
}

// LoadKeyring reads an armored OpenPGP public keyring from path.
func LoadKeyring(path string) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("script: loading keyring: %w", err)
	}
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("script: parsing keyring: %w", err)
	}
	return &Keyring{entities: entities}, nil
}

// signatureRequirement is the optional signature-verification policy a
// Sandbox can be asked to enforce on every RunFile call.
type signatureRequirement struct {
	keyring *Keyring
}

// RequireSignedScripts turns on signature verification for every RunFile
// call: a script at "<path>" must be accompanied by a detached, armored
// OpenPGP signature at "<path>.sig", signed by a key present in keyring.
// Off by default — most embedders trust their own script directory and
// have no modder-content-signing workflow.
func (s *Sandbox) RequireSignedScripts(keyring *Keyring) {
	s.signatures = &signatureRequirement{keyring: keyring}
}

// verifySignature checks path's detached ".sig" sibling against the
// sandbox's configured keyring. Returns nil only if a trusted key produced
// the signature over exactly this file's bytes.
func (s *Sandbox) verifySignature(path string, data []byte) error {
	if s.signatures == nil {
		return nil
	}
	sigPath := path + ".sig"
	sigFile, err := os.Open(sigPath)
	if err != nil {
		return fmt.Errorf("script: missing signature %s: %w", sigPath, err)
	}
	defer sigFile.Close()

	_, err = openpgp.CheckArmoredDetachedSignature(s.signatures.keyring.entities, bytes.NewReader(data), sigFile, nil)
	if err != nil {
		return fmt.Errorf("script: signature verification failed for %s: %w", path, err)
	}
	return nil
}
