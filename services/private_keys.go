package services

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/outpostfed/apcore/models"
	"github.com/outpostfed/apcore/util"
)

const (
	minKeySize = 1024
)

const (
	pKeyHttpSigPurpose = "http-signature"
)

type PrivateKeys struct {
	DB          *sql.DB
	PrivateKeys *models.PrivateKeys
}

// GetActorHTTPSignatureKey fetches the RSA private key a local actor signs
// outbound HTTP requests with, plus the key ID to place in the Signature
// header's keyId field (the actor's public-key IRI).
func (p *PrivateKeys) GetActorHTTPSignatureKey(c util.Context, actorIRI string) (k *rsa.PrivateKey, pubKeyID string, err error) {
	var kb []byte
	err = doInTx(c, p.DB, func(tx *sql.Tx) error {
		kb, err = p.PrivateKeys.GetByActorIRI(c, tx, actorIRI, pKeyHttpSigPurpose)
		return err
	})
	if err != nil {
		return
	}
	var pk crypto.PrivateKey
	pk, err = deserializeRSAPrivateKey(kb)
	if err != nil {
		return
	}
	var ok bool
	k, ok = pk.(*rsa.PrivateKey)
	if !ok {
		err = errors.New("private key is not of type *rsa.PrivateKey")
		return
	}
	pubKeyID = actorIRI + "#main-key"
	return
}

// CreateActorKey generates a new RSA keypair for a local actor and persists
// the private key, returning the PEM-encoded public key to embed in the
// actor's publicKey property.
func (p *PrivateKeys) CreateActorKey(c util.Context, actorIRI string) (pubPEM string, err error) {
	var priv []byte
	priv, pubPEM, err = createAndSerializeRSAKeys(2048)
	if err != nil {
		return
	}
	err = doInTx(c, p.DB, func(tx *sql.Tx) error {
		return p.PrivateKeys.Create(c, tx, actorIRI, pKeyHttpSigPurpose, priv)
	})
	return
}

// createandSerializeRSAKeys creates a new RSA Private key of a given size
// and returns its PKCS8 encoded form and the public key's PEM form.
func createAndSerializeRSAKeys(n int) (priv []byte, pub string, err error) {
	var k *rsa.PrivateKey
	k, err = createRSAPrivateKey(n)
	if err != nil {
		return
	}
	priv, err = serializeRSAPrivateKey(k)
	if err != nil {
		return
	}
	pub, err = marshalPublicKey(k.PublicKey)
	return
}

// createRSAPrivateKey creates a new RSA Private key of a given size.
//
// Returns an error if the size is less than minKeySize.
func createRSAPrivateKey(n int) (k *rsa.PrivateKey, err error) {
	if n < minKeySize {
		err = fmt.Errorf("Creating a key of size < %d is forbidden: %d", minKeySize, n)
		return
	}
	k, err = rsa.GenerateKey(rand.Reader, n)
	return
}

// marshalPublicKey encodes a public key into PEM format.
func marshalPublicKey(p crypto.PublicKey) (string, error) {
	pkix, err := x509.MarshalPKIXPublicKey(p)
	if err != nil {
		return "", err
	}
	pb := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pkix,
	})
	return string(pb), nil
}

// serializeRSAPrivateKey encodes a private key into PKCS8 format.
func serializeRSAPrivateKey(k *rsa.PrivateKey) ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(k)
}

// deserializeRSAPrivateKey decodes a private key from PKCS8 format.
func deserializeRSAPrivateKey(b []byte) (crypto.PrivateKey, error) {
	return x509.ParsePKCS8PrivateKey(b)
}
