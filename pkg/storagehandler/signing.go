package storagehandler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/basestub/basestub/pkg/audit"
	"github.com/basestub/basestub/pkg/webhooks"
)

// SignedPayload is the JSON body of a signed download URL token.
type SignedPayload struct {
	BucketID   string `json:"bucket_id"`
	ObjectName string `json:"object_name"`
	Exp        int64  `json:"exp"`
}

// CreateSignedToken mints the two-segment
// base64url(json).base64url(mac) token granting download of
// (bucket, name) until now+expiresIn.
func (h *Handler) CreateSignedToken(ctx context.Context, bucket, name string, expiresIn time.Duration) (string, error) {
	if _, err := h.lookupObject(ctx, bucket, name); err != nil {
		return "", err
	}

	key, err := h.keys.SigningKey(ctx)
	if err != nil {
		return "", fmt.Errorf("storage: load signing key: %w", err)
	}

	payload := SignedPayload{
		BucketID:   bucket,
		ObjectName: name,
		Exp:        time.Now().Add(expiresIn).Unix(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("storage: encode signed payload: %w", err)
	}

	mac := webhooks.MAC(encoded, key)
	token := base64.RawURLEncoding.EncodeToString(encoded) + "." + base64.RawURLEncoding.EncodeToString(mac)

	_ = audit.QuickLog(ctx, audit.EventTypeStorageSignedURL, audit.EventStatusSuccess,
		"signed URL issued: "+bucket+"/"+name)
	return token, nil
}

// VerifySignedToken checks a token's signature and expiry and returns
// its payload.
func (h *Handler) VerifySignedToken(ctx context.Context, token string) (*SignedPayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, ErrInvalidSignature
	}
	encoded, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidSignature
	}
	mac, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidSignature
	}

	key, err := h.keys.SigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: load signing key: %w", err)
	}
	if !webhooks.VerifyMAC(encoded, mac, key) {
		return nil, ErrInvalidSignature
	}

	var payload SignedPayload
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return nil, ErrInvalidSignature
	}
	if time.Now().Unix() > payload.Exp {
		return nil, ErrSignedURLExpired
	}
	return &payload, nil
}

// SignedURL is one entry of a batch signing response.
type SignedURL struct {
	Path      string `json:"path"`
	SignedURL string `json:"signedURL"`
	Error     string `json:"error,omitempty"`
}

// CreateSignedURLs signs each path in a batch, reporting per-path
// failures inline rather than failing the whole batch.
func (h *Handler) CreateSignedURLs(ctx context.Context, bucket string, paths []string, expiresIn time.Duration) []SignedURL {
	out := make([]SignedURL, len(paths))
	for i, path := range paths {
		out[i] = SignedURL{Path: path}
		token, err := h.CreateSignedToken(ctx, bucket, path, expiresIn)
		if err != nil {
			out[i].Error = err.Error()
			continue
		}
		out[i].SignedURL = fmt.Sprintf("/object/sign/%s/%s?token=%s", bucket, path, token)
	}
	return out
}
