package domain

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestVectorRoundTrip(t *testing.T) {
	in := Vector{0.5, -1.25, 3}
	raw, err := in.Value()
	be.Err(t, err, nil)

	var out Vector
	be.Err(t, out.Scan(raw), nil)
	be.Equal(t, out, in)
}

func TestVectorScanRejectsRaggedBlob(t *testing.T) {
	var v Vector
	be.True(t, v.Scan([]byte{1, 2, 3}) != nil)
}

func TestStringArrayScan(t *testing.T) {
	var a StringArray
	be.Err(t, a.Scan(`["INBOX","UNREAD"]`), nil)
	be.Equal(t, a, StringArray{"INBOX", "UNREAD"})
	be.True(t, a.Contains("UNREAD"))

	be.Err(t, a.Scan(nil), nil)
	be.Equal(t, len(a), 0)
}
