package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/dbviz/types"
)

// artifactRecord is the relational row shape shared by the SQL backends.
// Structured fields are stored as JSON text.
type artifactRecord struct {
	SourceItemPath string `gorm:"primaryKey"`
	ArtifactID     string `gorm:"column:artifact_id;not null;index"`
	Source         string `gorm:"not null"`
	Type           string `gorm:"not null"`
	Title          string
	Description    string
	IsPermanent    bool
	Permissions    string
	Properties     string
	OpenLocation   string
	DeleteLocation string
	CreatedAt      time.Time
}

func (artifactRecord) TableName() string { return "derived_artifacts" }

func toRecord(a *types.DerivedArtifact) (artifactRecord, error) {
	source, err := json.Marshal(a.Source)
	if err != nil {
		return artifactRecord{}, fmt.Errorf("encode source: %w", err)
	}
	perms, err := json.Marshal(a.Permissions)
	if err != nil {
		return artifactRecord{}, fmt.Errorf("encode permissions: %w", err)
	}
	props, err := json.Marshal(a.Properties)
	if err != nil {
		return artifactRecord{}, fmt.Errorf("encode properties: %w", err)
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return artifactRecord{
		SourceItemPath: a.SourceItemPath,
		ArtifactID:     a.ID,
		Source:         string(source),
		Type:           a.Type,
		Title:          a.Title,
		Description:    a.Description,
		IsPermanent:    a.IsPermanent,
		Permissions:    string(perms),
		Properties:     string(props),
		OpenLocation:   a.OpenLocation,
		DeleteLocation: a.DeleteLocation,
		CreatedAt:      created.UTC(),
	}, nil
}

func (r artifactRecord) toArtifact() (types.DerivedArtifact, error) {
	a := types.DerivedArtifact{
		ID:             r.ArtifactID,
		SourceItemPath: r.SourceItemPath,
		Type:           r.Type,
		Title:          r.Title,
		Description:    r.Description,
		IsPermanent:    r.IsPermanent,
		OpenLocation:   r.OpenLocation,
		DeleteLocation: r.DeleteLocation,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if err := unmarshalText(r.Source, &a.Source); err != nil {
		return a, fmt.Errorf("decode source of %s: %w", r.SourceItemPath, err)
	}
	if err := unmarshalText(r.Permissions, &a.Permissions); err != nil {
		return a, fmt.Errorf("decode permissions of %s: %w", r.SourceItemPath, err)
	}
	if err := unmarshalText(r.Properties, &a.Properties); err != nil {
		return a, fmt.Errorf("decode properties of %s: %w", r.SourceItemPath, err)
	}
	return a, nil
}

func unmarshalText(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
