package domain

import "time"

type Tag struct {
	ID        uint32 `json:"id" cbor:"1,keyasint"`
	PostCount uint32 `json:"post_count" cbor:"2,keyasint"`
	Name      string `json:"name" cbor:"3,keyasint"`
}

type Post struct {
	ID   uint32   `json:"id" cbor:"1,keyasint"`
	Tags []string `json:"tags" cbor:"2,keyasint"`
}

// TagCount is the cardinality of one queried tag's posting set.
type TagCount struct {
	ID    uint32 `json:"id"`
	Count int    `json:"count"`
}

type QueryResult struct {
	Tags  []TagCount    `json:"tags"`
	Posts []uint32      `json:"posts"`
	Took  time.Duration `json:"-"`
}

// BuildStats summarises a completed index build.
type BuildStats struct {
	Tags          int
	MaxTagID      uint32
	Posts         int
	Postings      int
	EmptyTags     int
	CountMismatch int
	RecountTime   time.Duration
	AllocateTime  time.Duration
	FillTime      time.Duration
	WriteTime     time.Duration
}

// CacheStats describes the contents of a parse cache.
type CacheStats struct {
	Tags      int       `json:"tags"`
	Posts     int       `json:"posts"`
	Refs      int       `json:"refs"`
	MaxTagID  uint32    `json:"max_tag_id"`
	CreatedAt time.Time `json:"created_at"`
}
