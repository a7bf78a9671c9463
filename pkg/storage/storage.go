// Package storage addresses and retrieves fine-tuned model artifacts. A
// deliverable recorded in the ledger carries a model root hash; this package
// derives the content identifier for that artifact and fetches it from an
// HTTP storage gateway, verifying the bytes against the identifier.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"go.uber.org/zap"
)

// ArtifactCID derives the CIDv1 (raw codec, sha2-256) of an artifact's
// bytes. The same derivation runs on upload and on verification after a
// fetch.
func ArtifactCID(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash artifact: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Gateway fetches artifacts from an HTTP storage gateway by CID.
type Gateway struct {
	// BaseURL is the gateway prefix the CID is appended to, e.g.
	// "https://gateway.example.org/ipfs/". Keep the trailing slash if the
	// gateway requires one.
	BaseURL string

	client *http.Client
}

// NewGateway returns a gateway client with a 30 second request timeout.
func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch retrieves the artifact behind c and verifies the bytes against it.
func (g *Gateway) Fetch(ctx context.Context, c cid.Cid) ([]byte, error) {
	zap.L().Debug("Fetching artifact", zap.String("cid", c.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+c.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Error("failed to close response body", zap.Error(err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s for %s", resp.Status, c)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	got, err := ArtifactCID(data)
	if err != nil {
		return nil, err
	}
	if !got.Equals(c) {
		return nil, fmt.Errorf("artifact %s failed verification: content hashes to %s", c, got)
	}
	return data, nil
}

// VerifyArtifact reports whether data matches the model root recorded in a
// deliverable. The root is expected to be the artifact's CID bytes.
func VerifyArtifact(data, modelRoot []byte) (bool, error) {
	c, err := ArtifactCID(data)
	if err != nil {
		return false, err
	}
	return bytes.Equal(c.Bytes(), modelRoot), nil
}
