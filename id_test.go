package secstore

import (
	"encoding/json"
	"testing"

	rtest "github.com/secstore/secstore/internal/test"
)

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()

	rtest.Assert(t, !id1.IsNull(), "NewID returned the null ID")
	rtest.Assert(t, id1 != id2, "two generated IDs are equal")
}

func TestParseID(t *testing.T) {
	id := NewID()

	parsed, err := ParseID(id.String())
	rtest.OK(t, err)
	rtest.Equals(t, id, parsed)

	_, err = ParseID("invalid")
	rtest.Assert(t, err != nil, "ParseID accepted an invalid string")

	_, err = ParseID("c3ab8ff13720e8ad9047dd39466b3c89")
	rtest.OK(t, err)
}

func TestIDJSON(t *testing.T) {
	id := NewID()

	buf, err := json.Marshal(id)
	rtest.OK(t, err)

	var parsed ID
	rtest.OK(t, json.Unmarshal(buf, &parsed))
	rtest.Equals(t, id, parsed)
}
