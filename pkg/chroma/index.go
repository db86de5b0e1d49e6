// Package chroma mirrors email embeddings into a Chroma collection so
// nearest-neighbour search can run server side.
package chroma

import (
	"context"
	"fmt"
	"log/slog"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/usemox/mox/internal/email/domain"
)

// Index is a Chroma collection keyed by email id with an account_id
// metadata field.
type Index struct {
	client     chroma.Client
	collection chroma.Collection
	logger     *slog.Logger
}

// NewIndex connects to Chroma and gets or creates the named collection.
// ef is attached to the collection; vectors are always supplied by the
// caller.
func NewIndex(ctx context.Context, baseURL, collection string, ef embeddings.EmbeddingFunction, logger *slog.Logger) (*Index, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	var opts []chroma.CreateCollectionOption
	if ef != nil {
		opts = append(opts, chroma.WithEmbeddingFunctionCreate(ef))
	}
	col, err := client.GetOrCreateCollection(ctx, collection, opts...)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	logger.Info("Initialized Chroma collection", "collection", collection, "url", baseURL)
	return &Index{client: client, collection: col, logger: logger}, nil
}

func (i *Index) Upsert(ctx context.Context, accountID, emailID string, vector []float32) error {
	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"account_id": accountID,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = i.collection.Upsert(ctx,
		chroma.WithIDs(chroma.DocumentID(emailID)),
		chroma.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chroma.WithMetadatas(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert email embedding: %w", err)
	}
	return nil
}

// Nearest returns up to k neighbours of query within one account.
func (i *Index) Nearest(ctx context.Context, accountID string, query []float32, k int) ([]domain.Neighbor, error) {
	results, err := i.collection.Query(ctx,
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(query)),
		chroma.WithNResults(k),
		chroma.WithWhereQuery(chroma.EqString("account_id", accountID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return nil, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}

	neighbors := make([]domain.Neighbor, 0, len(idGroups[0]))
	for n, id := range idGroups[0] {
		nb := domain.Neighbor{EmailID: string(id)}
		if len(distanceGroups) > 0 && n < len(distanceGroups[0]) {
			nb.Distance = float64(distanceGroups[0][n])
		}
		neighbors = append(neighbors, nb)
	}
	return neighbors, nil
}

func (i *Index) Delete(ctx context.Context, emailIDs ...string) error {
	if len(emailIDs) == 0 {
		return nil
	}
	ids := make([]chroma.DocumentID, len(emailIDs))
	for n, id := range emailIDs {
		ids[n] = chroma.DocumentID(id)
	}
	if err := i.collection.Delete(ctx, chroma.WithIDsDelete(ids...)); err != nil {
		return fmt.Errorf("failed to delete email embeddings: %w", err)
	}
	return nil
}

func (i *Index) Close() error {
	return i.client.Close()
}
