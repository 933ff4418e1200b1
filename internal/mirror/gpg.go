package mirror

import (
	"os"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
)

// VerifyManifestSignature checks a detached-armored GPG signature over
// the manifest bytes against the keyring at keyringPath, grounded on
// the teacher's apt_parser.go verifyPGPSignature (Release + Release.gpg
// strategy), generalized to any manifest/signature pair.
func VerifyManifestSignature(manifest, signature []byte, keyringPath string) error {
	keyringBytes, err := os.ReadFile(keyringPath) // #nosec G304 - operator-configured path
	if err != nil {
		return Wrap(KindIO, err, "reading pgp keyring")
	}

	publicKey, err := crypto.NewKeyFromArmored(string(keyringBytes))
	if err != nil {
		return Wrap(KindParseError, err, "parsing pgp keyring")
	}

	pgp := crypto.PGP()
	verifier, err := pgp.Verify().VerificationKey(publicKey).New()
	if err != nil {
		return Wrap(KindGPGNotVerified, err, "building pgp verifier")
	}

	result, err := verifier.VerifyDetached(manifest, signature, crypto.Armor)
	if err != nil {
		return Wrap(KindGPGNotVerified, err, "verifying detached signature")
	}
	if sigErr := result.SignatureError(); sigErr != nil {
		return Wrap(KindGPGNotVerified, sigErr, "signature rejected")
	}
	return nil
}
