// Package identity persists the daemon's signing keypair and derives
// its 32-byte process identifier (spec.md s3 "Process Identity", s6
// "Process identity"), grounded on teacher's
// std/security/pib/sqlite-pib.go (sqlite3-backed key storage).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// Identity is the daemon's (PublicKey, PrivateKey, Identifier) triple
// (spec.md s3).
type Identity struct {
	Public     ed25519.PublicKey
	private    ed25519.PrivateKey
	Identifier [32]byte // SHA256(PublicKey)
}

// Sign produces a detached Ed25519 signature over msg.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.private, msg)
}

// IdentifierHex renders the process identifier as it appears in
// management URIs (spec.md s6, replacing a 32 'X' placeholder).
func (id *Identity) IdentifierHex() string {
	return fmt.Sprintf("%x", id.Identifier[:])
}

const (
	keyLen   = 32 // hkdf-derived secretbox key length
	nonceLen = 24
	saltLen  = 16
)

// secretboxKey derives the at-rest encryption key for the stored
// private key from a per-installation salt via HKDF-SHA256, so the
// raw Ed25519 seed is never written to disk in the clear.
func secretboxKey(salt []byte) [keyLen]byte {
	var key [keyLen]byte
	kdf := hkdf.New(sha256.New, []byte("ccnd-keystore-v1"), salt, []byte("signing-key"))
	_, _ = io.ReadFull(kdf, key[:])
	return key
}

// Open loads the Identity from a sqlite3 keystore at path, generating
// and persisting a new Ed25519 keypair on first run (spec.md s5
// "the signing keystore is initialized at startup").
func Open(path string) (*Identity, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS keystore (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		public_key BLOB NOT NULL,
		salt BLOB NOT NULL,
		nonce BLOB NOT NULL,
		sealed_private_key BLOB NOT NULL
	)`); err != nil {
		return nil, err
	}

	row := db.QueryRow(`SELECT public_key, salt, nonce, sealed_private_key FROM keystore WHERE id = 1`)
	var pub, salt, nonceBytes, sealed []byte
	err = row.Scan(&pub, &salt, &nonceBytes, &sealed)
	switch {
	case err == sql.ErrNoRows:
		return generate(db)
	case err != nil:
		return nil, err
	}

	key := secretboxKey(salt)
	var nonce [nonceLen]byte
	copy(nonce[:], nonceBytes)
	priv, ok := secretbox.Open(nil, sealed, &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("identity: keystore decryption failed")
	}

	id := &Identity{Public: ed25519.PublicKey(pub), private: ed25519.PrivateKey(priv)}
	id.Identifier = sha256.Sum256(id.Public)
	return id, nil
}

func generate(db *sql.DB) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	key := secretboxKey(salt)
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	sealed := secretbox.Seal(nil, priv, &nonce, &key)

	if _, err := db.Exec(
		`INSERT INTO keystore (id, public_key, salt, nonce, sealed_private_key) VALUES (1, ?, ?, ?, ?)`,
		[]byte(pub), salt, nonce[:], sealed,
	); err != nil {
		return nil, err
	}

	id := &Identity{Public: pub, private: priv}
	id.Identifier = sha256.Sum256(id.Public)
	return id, nil
}
