package schema

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/basestub/basestub/pkg/sqlengine"
)

// RegisterFunctions registers the pgcrypto-equivalent and storage
// utility scalar functions spec names in §4.1: auth_hash_password,
// auth_verify_password, auth_generate_token, storage_foldername,
// storage_filename, storage_extension. auth_uid/auth_role/auth_email/
// auth_jwt are registered by pkg/sqlengine itself, since they read
// connection-local identity state that package owns.
func RegisterFunctions(ctx context.Context, engine *sqlengine.Engine) error {
	return engine.WithRawConn(ctx, func(sc *sqlite3.SQLiteConn) error {
		fns := map[string]any{
			"auth_hash_password":   hashPassword,
			"auth_verify_password": verifyPassword,
			"auth_generate_token":  generateToken,
			"storage_foldername":   storageFoldername,
			"storage_filename":     storageFilename,
			"storage_extension":    storageExtension,
		}
		for name, fn := range fns {
			if err := sc.RegisterFunc(name, fn, false); err != nil {
				return fmt.Errorf("schema: register %s: %w", name, err)
			}
		}
		return nil
	})
}

// hashPassword implements auth.hash_password: a bcrypt digest with a
// per-row salt, stored opaque.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword implements auth.verify_password.
func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// generateToken implements auth.generate_token(length): length random
// bytes, hex-encoded.
func generateToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// storageFoldername implements storage.foldername: every path segment
// but the last, joined back with "/".
func storageFoldername(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return ""
	}
	return dir
}

// storageFilename implements storage.filename: the last path segment.
func storageFilename(name string) string {
	return path.Base(name)
}

// storageExtension implements storage.extension: the file extension
// without its leading dot.
func storageExtension(name string) string {
	ext := path.Ext(name)
	return strings.TrimPrefix(ext, ".")
}
