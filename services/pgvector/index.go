// Package pgvector searches document chunks stored in a Postgres table with
// a pgvector embedding column.
package pgvector

import (
	"context"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"privacyx/internal/rag"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Index expects a table with columns content, source and embedding vector(n).
type Index struct {
	db    *gorm.DB
	table string
}

func NewIndex(db *gorm.DB, table string) (*Index, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", table)
	}
	return &Index{db: db, table: table}, nil
}

type hit struct {
	Text   string
	Source string
	Score  float64
}

func (i *Index) query(tx *gorm.DB, vector []float32, k int) *gorm.DB {
	q := pgvector.NewVector(vector)
	return tx.Table(i.table).
		Select("COALESCE(content, '') AS text, COALESCE(source, '') AS source, 1 - (embedding <=> ?) AS score", q).
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []interface{}{q}}}).
		Limit(k)
}

// Search returns at most k chunks by cosine similarity, best first.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]rag.Fragment, error) {
	log := logrus.WithFields(logrus.Fields{
		"table": i.table,
		"limit": k,
	})
	if k < 1 {
		return nil, nil
	}

	var hits []hit
	if err := i.query(i.db.WithContext(ctx), vector, k).Find(&hits).Error; err != nil {
		log.WithError(err).Error("pgvector search failed")
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	fragments := make([]rag.Fragment, len(hits))
	for n, h := range hits {
		fragments[n] = rag.Fragment{Text: h.Text, Source: h.Source, Score: h.Score}
	}
	log.WithField("hits", len(fragments)).Debug("pgvector search complete")
	return fragments, nil
}
