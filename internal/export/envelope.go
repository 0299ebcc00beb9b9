// Package export seals a user's profile and dose history into a
// password-protected envelope and restores it.
package export

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/argon2"

	"github.com/hrtlevels/hrtlevels/internal/api/models"
)

// Envelope format.
const (
	EnvelopeVersion = 1
	KDFName         = "argon2id"

	saltSize = 16
	keySize  = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// PasswordLength is the length of generated export passwords.
const PasswordLength = 20

// passwordAlphabet leaves out characters that are easy to misread: 0 O 1 l I.
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// Envelope errors.
var (
	ErrWrongPassword      = errors.New("wrong password or corrupted export")
	ErrUnsupportedVersion = errors.New("unsupported export version")
	ErrMalformedEnvelope  = errors.New("malformed export envelope")
)

// GeneratePassword returns a random password of PasswordLength characters.
func GeneratePassword() (string, error) {
	size := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, PasswordLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}

// Seal encrypts plaintext with a key derived from password.
func Seal(plaintext []byte, password string) (*models.EncryptedExport, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return &models.EncryptedExport{
		Version:    EnvelopeVersion,
		KDF:        KDFName,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, nil)),
	}, nil
}

// Open decrypts an envelope. A wrong password and a tampered ciphertext
// both return ErrWrongPassword.
func Open(env *models.EncryptedExport, password string) ([]byte, error) {
	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if env.KDF != KDFName {
		return nil, fmt.Errorf("%w: kdf %q", ErrMalformedEnvelope, env.KDF)
	}

	salt, err := decodeField("salt", env.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeField("nonce", env.Nonce)
	if err != nil {
		return nil, err
	}
	ciphertext, err := decodeField("ciphertext", env.Ciphertext)
	if err != nil {
		return nil, err
	}
	if len(salt) != saltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes", ErrMalformedEnvelope, saltSize)
	}

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", ErrMalformedEnvelope, aead.NonceSize())
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keySize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}

func decodeField(name, value string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64", ErrMalformedEnvelope, name)
	}
	return b, nil
}
