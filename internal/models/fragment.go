// Package models defines the fragment entities exchanged between the store, the
// ranking engine and the HTTP API.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMediaType is stored when a sound or image type is left empty.
const DefaultMediaType = "none"

// Fragment is one ordered text/media segment of a book.
type Fragment struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	Content            string    `json:"content" db:"content"`
	OneShotSoundSource *string   `json:"oneshotsoundsource" db:"oneshot_sound_source"`
	BgSoundType        string    `json:"bgsoundtype" db:"bg_sound_type"`
	BgSoundSource      *string   `json:"bgsoundsource" db:"bg_sound_source"`
	ImgType            string    `json:"imgtype" db:"img_type"`
	ImgSource          *string   `json:"imgsource" db:"img_source"`
	Book               uuid.UUID `json:"book" db:"book"`
	Chapter            int32     `json:"chapter" db:"chapter"`
	Rank               int32     `json:"rank" db:"rank"`
	CreatedAt          time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Normalize fills media type defaults and trims labels.
func (f *Fragment) Normalize() {
	f.BgSoundType = normalizeMediaType(f.BgSoundType)
	f.ImgType = normalizeMediaType(f.ImgType)
}

// Validate reports whether the fragment can be persisted.
func (f *Fragment) Validate() error {
	if f.ID == uuid.Nil {
		return fmt.Errorf("fragment id cannot be empty")
	}
	if f.Book == uuid.Nil {
		return fmt.Errorf("fragment book cannot be empty")
	}
	return nil
}

// FragmentInput is the payload for creating a fragment. The identifier is
// assigned by the server.
type FragmentInput struct {
	Content            string    `json:"content"`
	OneShotSoundSource *string   `json:"oneshotsoundsource,omitempty"`
	BgSoundType        string    `json:"bgsoundtype,omitempty"`
	BgSoundSource      *string   `json:"bgsoundsource,omitempty"`
	ImgType            string    `json:"imgtype,omitempty"`
	ImgSource          *string   `json:"imgsource,omitempty"`
	Book               uuid.UUID `json:"book"`
	Chapter            int32     `json:"chapter"`
	Rank               int32     `json:"rank"`
}

// ToFragment builds a fragment with a fresh v4 identifier.
func (in *FragmentInput) ToFragment() *Fragment {
	f := &Fragment{
		ID:                 uuid.New(),
		Content:            in.Content,
		OneShotSoundSource: in.OneShotSoundSource,
		BgSoundType:        in.BgSoundType,
		BgSoundSource:      in.BgSoundSource,
		ImgType:            in.ImgType,
		ImgSource:          in.ImgSource,
		Book:               in.Book,
		Chapter:            in.Chapter,
		Rank:               in.Rank,
	}
	f.Normalize()
	return f
}

// Simple is the lightweight {id, rank} projection used for ordering queries.
type Simple struct {
	ID   uuid.UUID `json:"id"`
	Rank int32     `json:"rank"`
}

// ReorderRequest is the body of a reorder call.
type ReorderRequest struct {
	To int32 `json:"to"`
}

func normalizeMediaType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultMediaType
	}
	return s
}
