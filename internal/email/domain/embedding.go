package domain

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Vector is a float32 embedding stored as a little-endian blob.
type Vector []float32

// Value implements driver.Valuer
func (v Vector) Value() (driver.Value, error) {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

// Scan implements sql.Scanner
func (v *Vector) Scan(value interface{}) error {
	var buf []byte
	switch b := value.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		buf = b
	case string:
		buf = []byte(b)
	default:
		return fmt.Errorf("unsupported Vector source %T", value)
	}
	if len(buf)%4 != 0 {
		return fmt.Errorf("vector blob length %d is not a multiple of 4", len(buf))
	}
	out := make(Vector, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	*v = out
	return nil
}

// GormDataType maps to bytea on Postgres and blob on SQLite.
func (Vector) GormDataType() string {
	return "bytes"
}

// EmbeddingRecord is the derived vector of one email.
type EmbeddingRecord struct {
	EmailID    string    `json:"email_id" gorm:"primaryKey"`
	AccountID  string    `json:"account_id" gorm:"index;not null"`
	Vector     Vector    `json:"-"`
	Dimensions int       `json:"dimensions"`
	UpdatedAt  time.Time `json:"updated_at"`
	Email      *Email    `json:"-" gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE"`
}

func (EmbeddingRecord) TableName() string {
	return "email_embeddings"
}

// Neighbor is one nearest-neighbor hit. Smaller distance is closer.
type Neighbor struct {
	EmailID  string  `json:"email_id"`
	Distance float64 `json:"distance"`
}
