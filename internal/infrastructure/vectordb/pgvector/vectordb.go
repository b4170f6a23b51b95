// Package pgvector implements the Vector Database plane of spec.md
// §4.E over pgvector-go, replacing the teacher's DocumentRepository.
// SemanticSearch — which never issued a vector query and fell back to
// plain keyword search — with a real cosine-distance k-NN lookup.
package pgvector

import (
	"context"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/nodeservice"
	"github.com/antbox/ecm/internal/infrastructure/database"
	"github.com/antbox/ecm/internal/infrastructure/database/models"
	pgv "github.com/pgvector/pgvector-go"
)

// Match is one hit from Search: a node uuid and a similarity score in
// [0,1], per spec.md §4.E. It is an alias of nodeservice.VectorMatch
// so *VectorDB satisfies nodeservice.VectorSearcher without an
// adapter.
type Match = nodeservice.VectorMatch

type VectorDB struct {
	db *database.DB
}

func New(db *database.DB) *VectorDB {
	return &VectorDB{db: db}
}

// Upsert stores or replaces the embedding for nodeUUID.
func (v *VectorDB) Upsert(ctx context.Context, nodeUUID string, vector []float32) error {
	row := models.NodeEmbedding{
		NodeUUID:  nodeUUID,
		Embedding: pgv.NewVector(vector),
	}
	err := v.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return apperrors.Unknown("failed to upsert embedding", err)
	}
	return nil
}

// DeleteByNodeUuid removes the embedding for nodeUUID, if any.
func (v *VectorDB) DeleteByNodeUuid(ctx context.Context, nodeUUID string) error {
	if err := v.db.WithContext(ctx).Where("node_uuid = ?", nodeUUID).Delete(&models.NodeEmbedding{}).Error; err != nil {
		return apperrors.Unknown("failed to delete embedding", err)
	}
	return nil
}

// Search runs a cosine-distance k-NN query using pgvector's `<=>`
// operator and converts distance (0 = identical, 2 = opposite) into
// the [0,1] similarity score spec.md §4.E requires.
func (v *VectorDB) Search(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	query := pgv.NewVector(vector)

	type row struct {
		NodeUUID string
		Distance float64
	}
	var rows []row
	err := v.db.WithContext(ctx).
		Model(&models.NodeEmbedding{}).
		Select("node_uuid, embedding <=> ? as distance", query).
		Order("distance ASC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Unknown("failed to search embeddings", err)
	}

	matches := make([]Match, len(rows))
	for i, r := range rows {
		matches[i] = Match{NodeUUID: r.NodeUUID, Score: 1 - (r.Distance / 2)}
	}
	return matches, nil
}
